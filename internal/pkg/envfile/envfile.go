package envfile

import "strings"

// Entry 解析出的一条 KEY=VALUE
type Entry struct {
	Key   string
	Value string
}

// Parse 解析 .env 风格文本
//
// 规则: 按行解析; 跳过空行与 # 开头的注释行; 第一个 = 为分隔符,
// 值本身可以包含 =。解析是纯函数, 同一输入多次解析结果一致。
func Parse(text string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		idx := strings.Index(trimmed, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:idx])
		if key == "" {
			continue
		}
		entries = append(entries, Entry{
			Key:   key,
			Value: strings.TrimSpace(trimmed[idx+1:]),
		})
	}
	return entries
}

// ToMap 转为 key→value 映射(后出现的同名key覆盖先出现的)
func ToMap(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}
