package pipeline

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// typeNameReplacer maps the characters reflect uses when spelling a type to
// identifier-safe substitutes. The substitutions are fixed so a type always
// gets the same pipeline name, which the generated-file cache relies on.
var typeNameReplacer = strings.NewReplacer(
	".", "_",
	"/", "_",
	"[", "__",
	"]", "",
	",", "_",
	" ", "",
	"*", "Ptr",
	"-", "_",
)

// PipelineTypeName returns the name of the generated pipeline type for an
// operation type: widgets.GetWidget gives Widgets_GetWidgetPipeline.
func PipelineTypeName(t reflect.Type) string {
	name := typeNameReplacer.Replace(t.String())
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:] + "Pipeline"
}
