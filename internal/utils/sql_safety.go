package utils

import (
	"errors"
	"regexp"
	"strings"
)

var sortFieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ResolveSort 校验排序字段与方向，只允许白名单中的列
func ResolveSort(field, order string, allowed []string, fallback string) (string, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		field = fallback
	}
	if !sortFieldPattern.MatchString(field) {
		return "", errors.New("invalid sort field format")
	}

	permitted := false
	for _, a := range allowed {
		if a == field {
			permitted = true
			break
		}
	}
	if !permitted {
		return "", errors.New("sort field is not allowed")
	}

	return field + " " + SanitizeSortOrder(order), nil
}

// SanitizeSortOrder 清理排序方向，默认降序
func SanitizeSortOrder(order string) string {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder == "ASC" || upperOrder == "DESC" {
		return upperOrder
	}
	return "DESC"
}

// LikePattern 构造 LIKE 模糊匹配参数，转义通配符
func LikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(s)) + "%"
}
