package offline

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-offline/core"
)

var (
	cacheFieldTag  = "cachefield"
	cacheFieldText = "must be one of grades, attendance or schedule"

	childKeyTag  = "childkey"
	childKeyText = "childrenData keys must match the student ids they hold"
)

func init() {
	_ = core.Validate.RegisterValidation(cacheFieldTag, cacheFieldValidation)
	core.RegisterCustomTranslation(cacheFieldTag, cacheFieldText)

	core.Validate.RegisterStructValidation(parentDataStructValidation, ParentData{})
	core.RegisterCustomTranslation(childKeyTag, childKeyText)
}

// fieldUpdate is the validated form of an UpdateStudentData call.
type fieldUpdate struct {
	StudentID string `json:"id" validate:"required,idchars"`
	Field     Field  `json:"field" validate:"cachefield"`
}

// Custom Validators

// cacheFieldValidation checks the value names an updatable record field.
func cacheFieldValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Field:
		return v.IsValid()
	case string:
		return Field(v).IsValid()
	}
	return false
}

// parentDataStructValidation checks that childrenData keys match the student ids they hold.
func parentDataStructValidation(sl validator.StructLevel) {
	pd, ok := sl.Current().Interface().(ParentData)
	if !ok {
		return
	}
	for id, data := range pd.ChildrenData {
		if data.Student.ID != id {
			sl.ReportError(pd.ChildrenData, "childrenData", "ChildrenData", childKeyTag, id)
			return
		}
	}
}
