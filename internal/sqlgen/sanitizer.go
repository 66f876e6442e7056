package sqlgen

import (
	"regexp"
	"strings"
)

var statementPattern = regexp.MustCompile(`(?is)\bselect\s.+?(?:;|$)`)

// Sanitize extracts the first select statement from raw completion text,
// normalizes it and injects the city filter when city is not empty.
// Sanitizing an already sanitized query without a city is a no-op.
func Sanitize(raw string, shape Shape, city string) (string, error) {
	stmt := statementPattern.FindString(stripMarkdownSQL(raw))
	if stmt == "" {
		return "", ErrNoStatementFound
	}

	query := normalize(stmt)
	if err := shape.check(query); err != nil {
		return "", err
	}

	return InjectCity(query, shape, city), nil
}

// InjectCity adds the city filter to a normalized query. The filter goes right
// after the first where keyword, or into a new where clause placed right before
// the limit clause. city is never taken from model output.
func InjectCity(query string, shape Shape, city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return query
	}
	filter := shape.CityColumn + " = " + quoteLiteral(strings.ToLower(city))

	if i := strings.Index(query, " where "); i >= 0 {
		at := i + len(" where ")
		return query[:at] + filter + " and " + query[at:]
	}
	base := strings.TrimSuffix(query, shape.Limit)
	return base + "where " + filter + " " + shape.Limit
}

// normalize collapses whitespace, lower-cases and terminates the statement with a single ';'.
func normalize(stmt string) string {
	q := strings.ToLower(strings.Join(strings.Fields(stmt), " "))
	q = strings.TrimSpace(strings.TrimRight(q, ";"))
	return q + ";"
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
