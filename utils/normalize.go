package utils

import (
	"reflect"
	"strings"
)

// TrimStrings trims every settable string field on a pointer-to-struct DTO.
// Non-struct or non-pointer input is left untouched.
func TrimStrings(dto any) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr {
		return
	}
	s := v.Elem()
	if s.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}
