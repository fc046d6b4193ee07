package wasm

// HostModule is the import module name engines link against:
//
//	__attribute__((import_module("md"), import_name("on_code_block")))
//	int on_code_block(uint32_t fn, const char* lang, uint32_t langlen,
//	                  const char* body, uint32_t bodylen, char** outptr);
//
//	__attribute__((import_module("md"), import_name("log_message")))
//	void log_message(uint32_t level, const char* msg, uint32_t len);
const HostModule = "md"

// Host function names exported under HostModule.
const (
	HostOnCodeBlock = "on_code_block"
	HostLogMessage  = "log_message"
)

// LogLevel is the level argument of log_message.
type LogLevel uint32

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// CodeBlockNotHandled is the on_code_block result telling the engine to
// HTML-escape the body itself. 0 means an empty replacement; a positive value
// is the length of a replacement whose address was stored in *outptr, which the
// engine frees after copying.
const CodeBlockNotHandled int32 = -1
