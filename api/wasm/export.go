// Package wasm describes the ABI between the host and a markdown engine
// compiled to WebAssembly.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a 32-bit
// linear memory model. All Wasm memory addresses are represented as 32-bit integers
// (addresses 0 to 4GB). Address 0 is NULL.
//
// An engine is a reactor module (no main). It must export its linear memory as
// "memory" and the functions below. C signatures, as built with wasi-sdk:
//
//	void* wrealloc(void* ptr, size_t size);          // realloc; NULL on exhaustion
//	void  wfree(void* ptr);
//
//	// Parses in[0:inlen] and stores the address of the result in *outptr.
//	// Returns the result length. The result lives in a buffer owned by the
//	// engine and reused by the next call. callback is a host function table
//	// index (0 for none) passed back through the on_code_block import.
//	int   parseUTF8(const char* in, uint32_t inlen, uint32_t parse_flags,
//	                uint32_t output_flags, char** outptr, uint32_t callback);
//
//	// Optional: same contract, JSON document tree output.
//	int   parseUTF8JSON(const char* in, uint32_t inlen, uint32_t parse_flags,
//	                    uint32_t output_flags, char** outptr, uint32_t callback);
//
//	uint32_t    WErrGetCode(void);
//	const char* WErrGetMsg(void);                    // NUL-terminated or NULL
//	void        WErrClear(void);
//
//	// Optional: stores the address of a static version string in *outptr.
//	int   mdVersion(char** outptr);
//
// If the module exports "_initialize" it is run once at instantiation.
package wasm

// Exported function names looked up on engine instances.
const (
	ExportMemory        = "memory"
	ExportRealloc       = "wrealloc"
	ExportFree          = "wfree"
	ExportParseUTF8     = "parseUTF8"
	ExportParseUTF8JSON = "parseUTF8JSON"
	ExportErrGetCode    = "WErrGetCode"
	ExportErrGetMsg     = "WErrGetMsg"
	ExportErrClear      = "WErrClear"
	ExportVersion       = "mdVersion"
	ExportInitialize    = "_initialize"
)

// RequiredExports must be present on every engine.
var RequiredExports = []string{
	ExportRealloc,
	ExportFree,
	ExportParseUTF8,
	ExportErrGetCode,
	ExportErrGetMsg,
	ExportErrClear,
}

// OptionalExports are used when present.
var OptionalExports = []string{
	ExportParseUTF8JSON,
	ExportVersion,
}
