package sqlite

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"modernc.org/sqlite"
)

const regexpCacheSize = 256

var regexpCache *lru.Cache[string, *regexp.Regexp]

// X REGEXP Y is evaluated by SQLite as regexp(Y, X).
func init() {
	var err error
	regexpCache, err = lru.New[string, *regexp.Regexp](regexpCacheSize)
	if err != nil {
		panic(err)
	}
	sqlite.MustRegisterDeterministicScalarFunction("regexp", 2, regexpFunc)
}

func regexpFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	pattern, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("regexp: pattern must be text, got %T", args[0])
	}
	subject, ok := textOf(args[1])
	if !ok {
		return int64(0), nil
	}
	re, err := compileCached(pattern)
	if err != nil {
		return nil, err
	}
	if re.MatchString(subject) {
		return int64(1), nil
	}
	return int64(0), nil
}

func compileCached(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexpCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp: %w", err)
	}
	regexpCache.Add(pattern, re)
	return re, nil
}

func textOf(v driver.Value) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
