package log

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// toFields turns the variadic arguments accepted by Logger into zap fields.
// Leading zap.Field and error values are taken as-is; the rest is read as
// key/value pairs. A trailing value without a key is logged as "arg#N".
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			i++
			continue
		case error:
			fields = append(fields, zap.Error(v))
			i++
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any("arg#"+strconv.Itoa(i), args[i]))
			break
		}

		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields = append(fields, field(key, args[i+1]))
		i += 2
	}

	return fields
}

// field picks a typed zap constructor for val. Named scalar kinds such as
// device states and command names are unwrapped to their underlying kind.
func field(key string, val any) zap.Field {
	switch v := val.(type) {
	case string:
		return zap.String(key, v)
	case bool:
		return zap.Bool(key, v)
	case int:
		return zap.Int(key, v)
	case int64:
		return zap.Int64(key, v)
	case uint64:
		return zap.Uint64(key, v)
	case float64:
		return zap.Float64(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case []byte:
		return zap.ByteString(key, v)
	case error:
		return zap.NamedError(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.String:
		return zap.String(key, rv.String())
	case reflect.Bool:
		return zap.Bool(key, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return zap.Int64(key, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return zap.Uint64(key, rv.Uint())
	case reflect.Float32, reflect.Float64:
		return zap.Float64(key, rv.Float())
	}
	return zap.Any(key, val)
}
