package kernel

import (
	"fmt"
	"reflect"
)

// Purpose names a class of registrable modifiers.
type Purpose string

const (
	PurposeGuards           Purpose = "guards"
	PurposeInterceptors     Purpose = "interceptors"
	PurposeFilters          Purpose = "filters"
	PurposeTypeFilters      Purpose = "type-filters"
	PurposeTypeInterceptors Purpose = "type-interceptors"
	PurposeExceptions       Purpose = "exceptions"
	PurposeExceptionFilters Purpose = "exception-filters"
)

// Token identifies the providers registered for (owner, purpose, member).
// The zero Token means "not configured".
type Token struct {
	Owner   any
	Purpose Purpose
	Member  string
}

// IsZero reports whether the token was never configured.
func (t Token) IsZero() bool { return t.Purpose == "" && t.Owner == nil }

func (t Token) String() string {
	if t.Member != "" {
		return fmt.Sprintf("%v:%s:%s", t.Owner, t.Purpose, t.Member)
	}
	return fmt.Sprintf("%v:%s", t.Owner, t.Purpose)
}

// TokenFor builds the token of a purpose scoped to owner. Funcs, pointers and
// other reference kinds are keyed by pointer identity so the token stays
// comparable.
func TokenFor(owner any, purpose Purpose, member ...string) Token {
	t := Token{Owner: identityOf(owner), Purpose: purpose}
	if len(member) > 0 {
		t.Member = member[0]
	}
	return t
}

type pointerIdentity struct {
	typ reflect.Type
	ptr uintptr
}

func (p pointerIdentity) String() string { return fmt.Sprintf("%v@%#x", p.typ, p.ptr) }

func identityOf(owner any) any {
	if owner == nil {
		return nil
	}
	v := reflect.ValueOf(owner)
	switch v.Kind() {
	case reflect.Func, reflect.Ptr, reflect.Map, reflect.Chan, reflect.Slice, reflect.UnsafePointer:
		return pointerIdentity{typ: v.Type(), ptr: v.Pointer()}
	}
	if v.Type().Comparable() {
		return owner
	}
	return fmt.Sprintf("%T:%v", owner, owner)
}

// Tokens bundles the tokens a GuardedHandler reads and writes.
type Tokens struct {
	Guards           Token
	Interceptors     Token
	Filters          Token
	ExceptionFilters Token
	owner            any
}

// ScopedTokens derives every token of a handler from a single owner identity.
func ScopedTokens(owner any, member ...string) Tokens {
	return Tokens{
		Guards:           TokenFor(owner, PurposeGuards, member...),
		Interceptors:     TokenFor(owner, PurposeInterceptors, member...),
		Filters:          TokenFor(owner, PurposeFilters, member...),
		ExceptionFilters: TokenFor(owner, PurposeExceptionFilters, member...),
		owner:            identityOf(owner),
	}
}

// TypeOf returns the reflect.Type of T, handy for exception and type keys.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// keyString renders a type/string routing key as a token member.
func keyString(key any) string {
	switch k := key.(type) {
	case nil:
		return ""
	case string:
		return "name:" + k
	case reflect.Type:
		return "type:" + typeName(k)
	default:
		return "type:" + typeName(reflect.TypeOf(key))
	}
}

// TypeName is the package-qualified name used for type keys, e.g.
// "*gnest/internal/domain/user.User".
func TypeName(t reflect.Type) string { return typeName(t) }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	prefix := ""
	for t.Kind() == reflect.Ptr {
		prefix += "*"
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return prefix + t.String()
	}
	return prefix + t.PkgPath() + "." + t.Name()
}
