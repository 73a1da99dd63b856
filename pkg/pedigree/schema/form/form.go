// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package form encodes request structs as URL form values using `form` tags.
//
// A tag has the shape `form:"name[,required]"`. Fields tagged "-" are ignored.
// Strings and string slices map directly to values; other kinds are JSON-encoded.
package form

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidType      = errors.New("invalid type")
	ErrUnsupportedField = errors.New("unsupported field")
	ErrMissingRequired  = errors.New("missing required field")
)

type fieldOptions struct {
	name     string
	required bool
	skip     bool
}

func options(field reflect.StructField) fieldOptions {
	var opt fieldOptions
	tag := field.Tag.Get("form")
	if tag == "-" {
		opt.skip = true
		return opt
	}
	name, rest, _ := strings.Cut(tag, ",")
	if opt.name = name; opt.name == "" {
		opt.name = strings.ToLower(field.Name)
	}
	for _, val := range strings.Split(rest, ",") {
		if val == "required" {
			opt.required = true
		}
	}
	return opt
}

// fields visits the exported, non-skipped fields of a struct value.
func fields(tvalue reflect.Value, visit func(opt fieldOptions, field reflect.StructField, value reflect.Value) error) error {
	ttype := tvalue.Type()
	for i := range ttype.NumField() {
		field, value := ttype.Field(i), tvalue.Field(i)
		if !field.IsExported() {
			continue
		} else if field.Anonymous {
			return errors.Wrap(ErrUnsupportedField, field.Name)
		}
		opt := options(field)
		if opt.skip {
			continue
		}
		if err := visit(opt, field, value); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a struct (or pointer to struct) as form values.
func Marshal(in any) (url.Values, error) {
	tvalue := reflect.ValueOf(in)
	if tvalue.Kind() == reflect.Pointer {
		tvalue = reflect.Indirect(tvalue)
	}
	if tvalue.Kind() != reflect.Struct {
		return nil, ErrInvalidType
	}
	v := url.Values{}
	err := fields(tvalue, func(opt fieldOptions, field reflect.StructField, value reflect.Value) error {
		if value.IsZero() {
			return nil
		}
		switch field.Type.Kind() {
		case reflect.String:
			v.Set(opt.name, value.String())
			return nil
		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				v[opt.name] = append([]string(nil), value.Interface().([]string)...)
				return nil
			}
		}
		jsonv, err := json.Marshal(value.Interface())
		if err != nil {
			return errors.Wrapf(err, "encoding %s", opt.name)
		}
		v.Set(opt.name, string(jsonv))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Unmarshal decodes form values into a pointer to struct.
func Unmarshal(v url.Values, out any) error {
	ptr := reflect.ValueOf(out)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return ErrInvalidType
	}
	tvalue := ptr.Elem()
	if tvalue.Kind() != reflect.Struct {
		return ErrInvalidType
	}
	return fields(tvalue, func(opt fieldOptions, field reflect.StructField, value reflect.Value) error {
		urlval := v.Get(opt.name)
		if urlval == "" {
			if opt.required {
				return errors.Wrap(ErrMissingRequired, opt.name)
			}
			return nil
		}
		switch field.Type.Kind() {
		case reflect.String:
			value.SetString(urlval)
			return nil
		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				value.Set(reflect.ValueOf(append([]string(nil), v[opt.name]...)))
				return nil
			}
		}
		if err := json.Unmarshal([]byte(urlval), value.Addr().Interface()); err != nil {
			return errors.Wrapf(err, "decoding %s", opt.name)
		}
		return nil
	})
}
