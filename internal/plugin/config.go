// Package plugin decodes the loosely typed settings blocks handed to fetchers,
// parsers and processors.
package plugin

import (
	"fmt"
	"maps"

	"github.com/mitchellh/mapstructure"
)

// Merge layers per-source settings over type-level settings.
func Merge(typeCfg, sourceCfg map[string]any) map[string]any {
	out := make(map[string]any, len(typeCfg)+len(sourceCfg))
	maps.Copy(out, typeCfg)
	maps.Copy(out, sourceCfg)
	return out
}

// Decode fills out from a settings block. Strings are converted to durations
// and scalar types are coerced, so YAML and JSON sourced values both work.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("create config decoder: %w", err)
	}
	if err = dec.Decode(in); err != nil {
		return fmt.Errorf("decode plugin config: %w", err)
	}
	return nil
}
