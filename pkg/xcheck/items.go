package xcheck

import "fmt"

// ParseItems maps syntactic items to an ArgMap:
//
//   - a bare name becomes a flag;
//   - name = "literal" becomes a string (only cooked strings are accepted);
//   - name(items...) becomes a nested list, parsed recursively.
//
// Anything else is a ConfigSyntaxError. When a name repeats within one list
// the last occurrence wins.
func ParseItems(items []Item) (ArgMap, error) {
	out := make(ArgMap, len(items))
	for _, item := range items {
		switch item.Kind {
		case ItemWord:
			out[item.Name] = Flag()
		case ItemNameValue:
			if item.Lit.Kind != LitString {
				return nil, &ConfigSyntaxError{
					Pos: item.Pos,
					Msg: fmt.Sprintf("invalid value for %s: %s literal %s, expected a quoted string", item.Name, item.Lit.Kind, item.Lit.Value),
				}
			}
			out[item.Name] = Str(item.Lit.Value)
		case ItemList:
			nested, err := ParseItems(item.Items)
			if err != nil {
				return nil, err
			}
			out[item.Name] = List(nested)
		default:
			return nil, &ConfigSyntaxError{
				Pos: item.Pos,
				Msg: fmt.Sprintf("unknown item %s", item.Lit.Value),
			}
		}
	}
	return out, nil
}
