package thinking

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// declaredIDPattern is the id a request may declare an assumption under.
// Scoped ids only ever appear as references in new thoughts.
var declaredIDPattern = regexp.MustCompile(`^A\d+$`)

// storedIDPattern also admits the scoped ids older session records were
// allowed to declare.
var storedIDPattern = regexp.MustCompile(`^(A\d+|[\w-]+:A\d+)$`)

var (
	// validate checks incoming requests.
	validate = newValidator(declaredIDPattern)
	// validateRecord checks thoughts and assumptions read back from storage.
	validateRecord = newValidator(storedIDPattern)
)

func newValidator(idPattern *regexp.Regexp) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("assumption_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldIssue describes one failed field check.
type FieldIssue struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// ValidationDetails lists the field checks that failed inside err, or nil if
// err carries none.
func ValidationDetails(err error) []FieldIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		issues = append(issues, FieldIssue{Field: field, Msg: describe(fe)})
	}
	return issues
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "must be a non-empty value"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "assumption_id":
		return `must match the pattern A<number> (e.g. "A1")`
	default:
		return "failed " + fe.Tag() + " check"
	}
}
