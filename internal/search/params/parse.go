package params

import (
	"net/url"
	"strconv"
	"strings"
)

// Parse splits a raw query string into typed SearchItems and
// ResultParameters (spec §4.5's "Parse" stage). `_has` is collected
// specially since its name carries embedded structure
// (`_has:Type:param:searchparam`).
func Parse(rawQuery string) (*ParsedQuery, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	out := &ParsedQuery{}
	for key, vals := range values {
		switch {
		case strings.HasPrefix(key, "_has:"):
			spec, err := parseHas(key, vals)
			if err != nil {
				return nil, err
			}
			out.Result.Has = append(out.Result.Has, spec...)
			continue
		case key == "_sort":
			out.Result.Sort = parseSort(vals)
			continue
		case key == "_count":
			if len(vals) > 0 {
				if n, err := strconv.Atoi(vals[0]); err == nil {
					out.Result.Count = &n
				}
			}
			continue
		case key == "_include":
			out.Result.Include = append(out.Result.Include, parseIncludes(vals)...)
			continue
		case key == "_revinclude":
			out.Result.RevInclude = append(out.Result.RevInclude, parseIncludes(vals)...)
			continue
		case key == "_summary":
			if len(vals) > 0 {
				out.Result.Summary = vals[0]
			}
			continue
		case key == "_elements":
			out.Result.Elements = splitCommaAll(vals)
			continue
		case key == "_total":
			if len(vals) > 0 {
				out.Result.Total = vals[0]
			}
			continue
		case key == "_filter":
			if len(vals) > 0 {
				out.Result.Filter = vals[0]
			}
			continue
		case key == "_type":
			out.Result.Type = splitCommaAll(vals)
			continue
		case key == "_format":
			if len(vals) > 0 {
				out.Result.Format = vals[0]
			}
			continue
		case key == "_cursor":
			if len(vals) > 0 {
				out.Result.Cursor = vals[0]
			}
			continue
		}

		item, err := parseItem(key, vals)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// parseItem splits `name:modifier.chain1.chain2` into its components and
// each `a,b&a=c` value group into prefix+raw pairs.
func parseItem(key string, vals []string) (SearchItem, error) {
	name := key
	modifier := ModifierNone
	typeFilter := ""

	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		modStr := name[idx+1:]
		name = name[:idx]
		if dot := strings.IndexByte(modStr, '.'); dot >= 0 {
			name += modStr[dot:]
			modStr = modStr[:dot]
		}
		if m, ok := knownModifiers[modStr]; ok {
			modifier = m
		} else {
			typeFilter = modStr
		}
	}

	var chain []string
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		chain = strings.Split(name[idx+1:], ".")
		name = name[:idx]
	}

	item := SearchItem{ParamName: name, Modifier: modifier, TypeFilter: typeFilter, Chain: chain}
	for _, v := range vals {
		var group []SearchValue
		for _, raw := range strings.Split(v, ",") {
			group = append(group, parseValuePrefix(raw))
		}
		item.Values = append(item.Values, group)
	}
	return item, nil
}

func parseValuePrefix(raw string) SearchValue {
	if len(raw) >= 2 {
		candidate := raw[:2]
		if prefix, ok := validPrefixes[candidate]; ok && len(raw) > 2 {
			return SearchValue{Prefix: prefix, Raw: raw[2:]}
		}
	}
	return SearchValue{Prefix: PrefixEq, Raw: raw}
}

func parseSort(vals []string) []SortSpec {
	var specs []SortSpec
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part == "" {
				continue
			}
			if strings.HasPrefix(part, "-") {
				specs = append(specs, SortSpec{Param: part[1:], Descending: true})
			} else {
				specs = append(specs, SortSpec{Param: part, Descending: false})
			}
		}
	}
	return specs
}

func parseIncludes(vals []string) []IncludeSpec {
	var specs []IncludeSpec
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			iterate := false
			if strings.HasPrefix(part, "iterate:") {
				iterate = true
				part = strings.TrimPrefix(part, "iterate:")
			}
			segs := strings.Split(part, ":")
			spec := IncludeSpec{Iterate: iterate}
			if len(segs) >= 2 {
				spec.SourceType = segs[0]
				spec.Param = segs[1]
			}
			if len(segs) >= 3 {
				spec.TargetType = segs[2]
			}
			specs = append(specs, spec)
		}
	}
	return specs
}

func splitCommaAll(vals []string) []string {
	var out []string
	for _, v := range vals {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

// parseHas parses `_has:ResourceType:refParam:searchParam=value` into a
// HasSpec per value (spec §4.5's reverse-chaining grammar). Only the first
// ResourceType:refParam:searchParam triple is read: a nested `_has` after
// it is not parsed, and a key with fewer segments yields no spec.
func parseHas(key string, vals []string) ([]HasSpec, error) {
	segs := strings.Split(key, ":")
	// segs[0] == "_has"
	var specs []HasSpec
	if len(segs) < 4 {
		return specs, nil
	}
	resourceType, refParam, searchParam := segs[1], segs[2], segs[3]
	for _, v := range vals {
		specs = append(specs, HasSpec{
			ResourceType: resourceType, RefParam: refParam, SearchParam: searchParam, Value: v,
		})
	}
	return specs, nil
}
