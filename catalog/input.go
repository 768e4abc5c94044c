package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/maclib/library"
)

// inputValidate checks the struct tags on StandardInput and ClusterInput.
// Initialized in init() with the vocabulary validators.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so errors match the document the caller sent.
	inputValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := inputValidate.RegisterValidation("focus", validateFocus); err != nil {
		panic(fmt.Sprintf("register focus validator: %v", err))
	}
	if err := inputValidate.RegisterValidation("emotion", validateEmotion); err != nil {
		panic(fmt.Sprintf("register emotion validator: %v", err))
	}
}

// validateFocus accepts the empty string (normalized to N/A) or a Focus value.
func validateFocus(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || library.Focus(s).IsValid()
}

// validateEmotion accepts vocabulary terms and their legacy aliases.
func validateEmotion(fl validator.FieldLevel) bool {
	_, unknown := library.NormalizeEmotions([]library.Emotion{library.Emotion(fl.Field().String())})
	return len(unknown) == 0
}

// StandardInput carries the caller-editable fields of a Standard. A nil
// field is left untouched on update and takes its default on create.
type StandardInput struct {
	ID               *string               `json:"id" validate:"omitnil,max=64"`
	Name             *string               `json:"name" validate:"omitnil,max=256"`
	Cluster          *string               `json:"cluster" validate:"omitnil,max=64"`
	Description      *string               `json:"description" validate:"omitnil,max=8192"`
	ImportanceWeight *float64              `json:"importance_weight" validate:"omitnil,gte=0,lte=1"`
	Vector           *library.WeightVector `json:"mac_vector"`
	PrimaryFocus     *string               `json:"primary_focus" validate:"omitnil,focus"`
	SecondaryFocus   *string               `json:"secondary_focus" validate:"omitnil,focus"`
	Emotions         *[]library.Emotion    `json:"impacted_emotions" validate:"omitnil,dive,emotion"`
	Rationale        *library.Rationale    `json:"rationale"`
}

// ClusterInput carries the caller-editable fields of a Cluster.
type ClusterInput struct {
	ID          *string `json:"id" validate:"omitnil,max=64"`
	Name        *string `json:"name" validate:"omitnil,max=256"`
	Description *string `json:"description" validate:"omitnil,max=4096"`
	Order       *int    `json:"order" validate:"omitnil,gte=1"`
}

// Ptr returns a pointer to v, for building inputs.
func Ptr[T any](v T) *T {
	return &v
}

// checkInput runs the struct-tag validators and converts the first failure
// into a *library.ValidationError.
func checkInput(in any) error {
	err := inputValidate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", library.ErrValidation, err)
	}

	fe := verrs[0]
	field := fe.Field()
	if ns := fe.Namespace(); strings.Contains(ns, ".") {
		// StandardInput.impacted_emotions[2] -> impacted_emotions[2]
		_, field, _ = strings.Cut(ns, ".")
	}
	return library.Invalid(field, fe.Value(), "%s", tagReason(fe))
}

func tagReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "focus":
		return fmt.Sprintf("must be one of %v", library.FocusOptions)
	case "emotion":
		return "not in the emotion vocabulary"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// requiredID trims and checks an identifier field.
func requiredID(field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", library.Invalid(field, nil, "is required")
	}
	return strings.TrimSpace(*v), nil
}
