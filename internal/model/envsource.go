package model

// EnvVarEntry 一条环境变量
//
// MatchesExample 是纯派生字段: defaults[key] == value 时为 true,
// 在 key/value/defaults 任一变化时重算。
type EnvVarEntry struct {
	Key            string `json:"key"`
	Value          string `json:"value"`
	MatchesExample bool   `json:"matches_example"`
}

// EnvSource 一组命名的环境变量基线(实例内名称唯一)
type EnvSource struct {
	Name    string        `json:"name"`
	Label   string        `json:"label"`
	EnvVars []EnvVarEntry `json:"env_vars"`
}

// CloneEnvVars 深拷贝变量列表并按 defaults 重算 MatchesExample
//
// 切换来源时必须整体替换为全新克隆, 保证实例间、实例与模板间互不别名。
func CloneEnvVars(entries []EnvVarEntry, defaults map[string]string) []EnvVarEntry {
	out := make([]EnvVarEntry, len(entries))
	for i, e := range entries {
		out[i] = EnvVarEntry{
			Key:            e.Key,
			Value:          e.Value,
			MatchesExample: matchesExample(e.Key, e.Value, defaults),
		}
	}
	return out
}

// RecomputeMatch 重算单条变量的 MatchesExample(只影响该条目)
func RecomputeMatch(entry EnvVarEntry, defaults map[string]string) EnvVarEntry {
	entry.MatchesExample = matchesExample(entry.Key, entry.Value, defaults)
	return entry
}

func matchesExample(key, value string, defaults map[string]string) bool {
	if defaults == nil {
		return false
	}
	def, ok := defaults[key]
	return ok && def == value
}

// FindEnvSource 按名称查找来源
func FindEnvSource(sources []EnvSource, name string) (EnvSource, bool) {
	for _, s := range sources {
		if s.Name == name {
			return s, true
		}
	}
	return EnvSource{}, false
}
