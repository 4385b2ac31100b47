package xlog

import (
	"io"
	"os"
	"reflect"
)

// GetPointer do the same thing like fmt.Sprintf("%p", &num) but fast
func GetPointer(value any) uint {
	ptr := reflect.ValueOf(value).Pointer()
	uintPtr := uintptr(ptr)
	return uint(uintPtr)
}

// newWriter opens filepath in append mode, creating it when missing.
// An empty filepath means os.Stdout and no file is returned.
func newWriter(filepath string) (*os.File, io.Writer, error) {
	if filepath == "" {
		return nil, os.Stdout, nil
	}
	f, err := os.OpenFile(filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
