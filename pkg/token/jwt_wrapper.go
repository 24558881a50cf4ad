package token

// 這個變數會在測試時被覆蓋
var (
	GenerateJWTFunc = GenerateJWT
	ParseJWTFunc    = ParseJWT
)

// GenerateJWTWrapper issue a chat token for memberID
func GenerateJWTWrapper(memberID string) (string, error) {
	return GenerateJWTFunc(memberID, "chat_service")
}

// ParseJWTWrapper used by the middleware so tests can swap the parser
func ParseJWTWrapper(t string) (*Claims, error) {
	return ParseJWTFunc(t)
}
