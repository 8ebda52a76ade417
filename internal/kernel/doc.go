// Package kernel composes guards, interceptors and filters around a backend
// into one cached, cancellable processing chain.
//
// Every protocol surface (HTTP routes, WebSocket events, Kafka topics,
// in-process events) builds one GuardedHandler per endpoint:
//
//	h := kernel.NewGuardedHandler("GET /users", backend, kernel.WithRegistry(reg))
//	_ = h.UseGuards(authGuard)
//	_ = h.UseInterceptors(logging, timeout)
//	_ = h.UseExceptionHandlers(kernel.TypeOf[*NotFound](), notFoundHandler)
//	out, err := h.Handle(kernel.NewContext(ctx, raw), input).Await()
//
// Invocation order is filter[0] → … → interceptor[0] → … → backend, with the
// exception dispatcher wrapped around all of them. Guards run first, one at a
// time; the first false rejects with ErrForbidden. Registering a modifier
// drops the cached chain, which is rebuilt on the next invocation.
package kernel
