package patterns

import "github.com/cognicore/kbase/pkg/kbase/store"

// Value length limits for fact patterns.
const (
	MaxFactValue     = 500
	MaxEqualityValue = 200
)

// value captures up to the end of the sentence; a dot inside a number
// such as 36.6 does not terminate it.
const value = `(.+?)(?=[.!?](?:\s|$)|[\r\n]|$)`

// Russian returns the built-in Russian pattern table.
func Russian() Set {
	const subject = `(?!(?:Если|Когда|При|После)\b)([А-ЯЁ][А-Яа-яёЁ ]{0,50}?)`
	return Set{
		Language: "ru",
		Rules: []RulePattern{
			{Expr: `\bесли\s+(.+?)\s*[,;]\s*(?:то|тогда)\s+(.+)`, Type: store.Conditional, Confidence: 1.0},
			{Expr: `\bкогда\s+(.+?)\s*[,;]\s*(?:тогда|то)\s+(.+)`, Type: store.Conditional, Confidence: 0.9},
			{Expr: `\bпри\s+(.+?)\s*[,;]\s*(?:происходит|наблюдается|возникает|наступает)\s+(.+)`, Type: store.Conditional, Confidence: 0.9},
			{Expr: `\bв\s+случае\s+(.+?)\s*[,;]\s*(?:наступает|происходит)\s+(.+)`, Type: store.Conditional, Confidence: 0.85},
			{Expr: `\bпосле\s+того\s+как\s+(.+?)\s*[,;]\s*(.+)`, Type: store.Temporal, Confidence: 0.85},
			{Expr: `(.+?)\s+приводит\s+к\s+(.+)`, Type: store.Causal, Confidence: 0.8},
			{Expr: `\bиз-за\s+(.+?)\s+наступает\s+(.+)`, Type: store.Causal, Confidence: 0.8},
			{Expr: `(.+?)\s+вызывает\s+(.+)`, Type: store.Causal, Confidence: 0.75},
			{Expr: `\bследствием\s+(.+?)\s+является\s+(.+)`, Type: store.Causal, Confidence: 0.75},
			{Expr: `(.+?)\s+определяется\s+как\s+(.+)`, Type: store.Definitional, Confidence: 0.7},
			{Expr: `(.+?)\s+обладает\s+свойством\s+(.+)`, Type: store.Definitional, Confidence: 0.6},
		},
		Facts: []FactPattern{
			{Expr: subject + `\s+[—–-]\s+это\s+` + value, Confidence: 0.95},
			{Expr: subject + `\s+это\s+` + value, Confidence: 0.9},
			{Expr: subject + `\s+является\s+` + value, Confidence: 0.9},
			{Expr: subject + `\s+представляет\s+собой\s+` + value, Confidence: 0.85},
			{Expr: `\bзначение\s+([А-Яа-яёЁA-Za-z_]+)\s*[=:]\s*` + value, Confidence: 0.8, MaxValue: MaxEqualityValue, IgnoreCase: true},
			{Expr: `([А-Яа-яёЁA-Za-z_]+)\s+равно\s+` + value, Confidence: 0.75, MaxValue: MaxEqualityValue, IgnoreCase: true},
			{Expr: `([А-Яа-яёЁA-Za-z_]+)\s+составляет\s+` + value, Confidence: 0.75, MaxValue: MaxEqualityValue, IgnoreCase: true},
			{Expr: `([А-Яа-яёЁA-Za-z_]+)\s*[=:]\s*` + value, Confidence: 0.7, MaxValue: MaxEqualityValue},
		},
	}
}

// English returns the built-in English pattern table.
func English() Set {
	const subject = `(?!(?:If|When|In case|After)\b)([A-Z][A-Za-z ]{0,50}?)`
	return Set{
		Language: "en",
		Rules: []RulePattern{
			{Expr: `\bif\s+(.+?)\s*[,;]\s*then\s+(.+)`, Type: store.Conditional, Confidence: 1.0},
			{Expr: `\bwhen\s+(.+?)\s*[,;]\s*then\s+(.+)`, Type: store.Conditional, Confidence: 0.9},
			{Expr: `\bin\s+case\s+of\s+(.+?)\s*[,;]\s*occurs\s+(.+)`, Type: store.Conditional, Confidence: 0.8},
			{Expr: `\bafter\s+(.+?)\s*[,;]\s*(.+)`, Type: store.Temporal, Confidence: 0.7},
			{Expr: `(.+?)\s+leads\s+to\s+(.+)`, Type: store.Causal, Confidence: 0.8},
			{Expr: `(.+?)\s+causes\s+(.+)`, Type: store.Causal, Confidence: 0.8},
			{Expr: `(.+?)\s+is\s+defined\s+as\s+(.+)`, Type: store.Definitional, Confidence: 0.7},
		},
		Facts: []FactPattern{
			{Expr: subject + `\s+is\s+` + value, Confidence: 0.95},
			{Expr: subject + `\s+means\s+` + value, Confidence: 0.9},
			{Expr: subject + `\s+refers\s+to\s+` + value, Confidence: 0.9},
			{Expr: `([A-Za-z_]+)\s*[=:]\s*` + value, Confidence: 0.7, MaxValue: MaxEqualityValue},
		},
	}
}
