// Package prompt renders LLM prompts from an embedded template catalog.
//
// Templates use two constructs. {{KEY}} is replaced by the value of KEY, or
// by "[KEY not set]" when the key is absent. {{#IF KEY}}...{{/IF}} keeps its
// body when KEY is truthy (present, non-empty, and not "false" or "0"), and
// {{#IF KEY == 'value'}}...{{/IF}} keeps it when KEY equals value. Blocks may
// nest; inner blocks resolve first.
//
// The package also plans how an article is split into sequential chunks and
// builds the per-chunk prompts that keep headings from repeating.
package prompt
