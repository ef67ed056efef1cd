// Copyright 2021 HandsOn-RecSys Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package copier

import (
	"encoding"
	"reflect"

	"github.com/juju/errors"
)

// Copy deep copies src into dst. dst must be a pointer. Structs implementing
// encoding.BinaryMarshaler/BinaryUnmarshaler are copied through their binary
// form, which lets types with unexported state take part in the copy.
func Copy(dst, src interface{}) error {
	dstPtr := reflect.ValueOf(dst)
	if dstPtr.Kind() != reflect.Ptr {
		return errors.NotValidf("expect dst to be a pointer, but receive %v", dstPtr.Kind())
	}
	return copyValue(dstPtr.Elem(), reflect.ValueOf(src))
}

func copyValue(dst, src reflect.Value) error {
	if dst.Kind() != src.Kind() {
		if dst.Kind() != reflect.Interface {
			return errors.NotValidf("different type: %v != %v", dst.Kind(), src.Kind())
		}
		boxed := reflect.New(src.Type())
		if err := copyValue(boxed.Elem(), src); err != nil {
			return err
		}
		dst.Set(boxed.Elem())
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		dst.Set(src)
	case reflect.Slice:
		return copySlice(dst, src)
	case reflect.Map:
		return copyMap(dst, src)
	case reflect.Struct:
		return copyStruct(dst, src)
	case reflect.Ptr:
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(src.Elem().Type()))
		}
		return copyValue(dst.Elem(), src.Elem())
	case reflect.Interface:
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return copyValue(dst, src.Elem())
	default:
		return errors.NotSupportedf("copy %v", dst.Kind())
	}
	return nil
}

func copySlice(dst, src reflect.Value) error {
	if src.IsNil() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.IsNil() || dst.Cap() < src.Len() {
		dst.Set(reflect.MakeSlice(src.Type(), src.Len(), src.Len()))
	} else {
		dst.SetLen(src.Len())
	}
	for i := 0; i < src.Len(); i++ {
		if err := copyValue(dst.Index(i), src.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func copyMap(dst, src reflect.Value) error {
	if src.IsNil() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	dst.Set(reflect.MakeMap(dst.Type()))
	iter := src.MapRange()
	for iter.Next() {
		value := reflect.New(iter.Value().Type())
		if err := copyValue(value.Elem(), iter.Value()); err != nil {
			return err
		}
		dst.SetMapIndex(iter.Key(), value.Elem())
	}
	return nil
}

func copyStruct(dst, src reflect.Value) error {
	if dst.Type() != src.Type() {
		return errors.NotValidf("different struct: %v != %v", dst.Type(), src.Type())
	}
	srcPtr := reflect.New(src.Type())
	srcPtr.Elem().Set(src)
	marshaler, hasMarshaler := srcPtr.Interface().(encoding.BinaryMarshaler)
	dstPtr := reflect.New(dst.Type())
	unmarshaler, hasUnmarshaler := dstPtr.Interface().(encoding.BinaryUnmarshaler)
	if hasMarshaler && hasUnmarshaler {
		data, err := marshaler.MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = unmarshaler.UnmarshalBinary(data); err != nil {
			return errors.Trace(err)
		}
		dst.Set(dstPtr.Elem())
		return nil
	}
	for i := 0; i < src.NumField(); i++ {
		if !dst.Field(i).CanSet() {
			continue
		}
		if err := copyValue(dst.Field(i), src.Field(i)); err != nil {
			return err
		}
	}
	return nil
}
