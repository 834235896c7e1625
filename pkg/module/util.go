package module

// row values come back as string/int64/float64 from every backend, missing
// columns are absent from the map

func stringOf(v interface{}, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func int64Of(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func optInt64(v interface{}) *int64 {
	if v == nil {
		return nil
	}
	n := int64Of(v)
	return &n
}

func optFloat64(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}
