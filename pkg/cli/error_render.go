package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jlrickert/xcheck/pkg/schema"
	"github.com/jlrickert/xcheck/pkg/xcheck"
)

func renderUserError(err error, deps *Deps) string {
	if err == nil {
		return ""
	}
	debug := isDebugLogLevel(deps)

	var typeErr *xcheck.TypeConfigError
	if errors.As(err, &typeErr) && !debug {
		where := typeErr.Type
		if typeErr.Field != "" {
			where += "." + typeErr.Field
		}
		return fmt.Sprintf("bad xcheck annotation on %s: %v", where, typeErr.Err)
	}

	var schemaErr *schema.SchemaError
	if errors.As(err, &schemaErr) && !debug {
		return schemaErr.Error()
	}

	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		return mismatch.Error()
	}

	return err.Error()
}

func isDebugLogLevel(deps *Deps) bool {
	if deps == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(deps.LogLevel), "debug")
}
