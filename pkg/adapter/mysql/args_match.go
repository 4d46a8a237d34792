package mysql

import "encoding/json"

// argsMatch mirrors pkg/adapter/memadapter and pkg/adapter/postgres's
// comparison so CheckUnique behaves identically across storage engines.
func argsMatch(keys []string, a, b json.RawMessage) bool {
	if len(keys) == 0 {
		return canonicalEqual(a, b)
	}
	var ma, mb map[string]any
	_ = json.Unmarshal(a, &ma)
	_ = json.Unmarshal(b, &mb)
	for _, k := range keys {
		va, oka := ma[k]
		vb, okb := mb[k]
		if oka != okb {
			return false
		}
		if !oka {
			continue
		}
		aj, _ := json.Marshal(va)
		bj, _ := json.Marshal(vb)
		if string(aj) != string(bj) {
			return false
		}
	}
	return true
}

func canonicalEqual(a, b json.RawMessage) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return string(a) == string(b)
	}
	ca, _ := json.Marshal(va)
	cb, _ := json.Marshal(vb)
	return string(ca) == string(cb)
}
