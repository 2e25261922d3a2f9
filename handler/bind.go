package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
)

// DefaultMaxBodySize caps JSON request bodies.
const DefaultMaxBodySize = 1 << 20

// JSONBody decodes a JSON request body. An empty body leaves v untouched.
func JSONBody(maxBytes int64) Bind {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(r *http.Request, v any) error {
		if r.Body == nil || r.ContentLength == 0 {
			return nil
		}
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mt, _, err := mime.ParseMediaType(ct)
			if err != nil || mt != "application/json" {
				return ErrUnsupportedMedia.WithMessage(ErrUnsupportedMediaType.Error())
			}
		}
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes+1))
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) && r.ContentLength > maxBytes {
				return ErrPayloadTooLarge.WithMessage(ErrBodyTooLarge.Error())
			}
			return ErrBadRequest.WithMessage("malformed JSON body")
		}
		return nil
	}
}

// Query fills string, integer and bool fields tagged `query:"name"`.
func Query() Bind {
	return func(r *http.Request, v any) error {
		return bindValues(r.URL.Query(), v)
	}
}

func bindValues(values url.Values, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil
	}
	rv = rv.Elem()
	rt := rv.Type()

	verr := ValidationError{}
	for i := range rt.NumField() {
		field := rt.Field(i)
		name := field.Tag.Get("query")
		if name == "" || !values.Has(name) {
			continue
		}
		raw := values.Get(name)
		fv := rv.Field(i)
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Int, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				verr.Add(name, "must be an integer")
				continue
			}
			fv.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				verr.Add(name, "must be a boolean")
				continue
			}
			fv.SetBool(b)
		}
	}
	return verr.Err()
}
