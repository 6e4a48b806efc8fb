// Package runtimeconfig implements C9: a hot key-value cache keyed by a
// closed enumeration, each key backed by a static-config default that a
// database override row supersedes. Grounded on original_source's
// runtime_config/{keys,cache}.rs and services/runtime_config.rs, adapted
// from tokio::sync::RwLock + a ConfigKey enum to sync.RWMutex over a
// string-keyed Go map.
package runtimeconfig

// ValueKind is the declared shape a ConfigKey's value must validate
// against on write (spec §4.9).
type ValueKind int

const (
	KindBoolean ValueKind = iota
	KindInteger
	KindString
	KindEnum
)

// ConfigKey is one entry of the closed key set the cache and the
// persisted override table both recognize.
type ConfigKey string

const (
	LoggingLevel ConfigKey = "logging.level"

	SearchDefaultCount     ConfigKey = "search.default_count"
	SearchMaxCount         ConfigKey = "search.max_count"
	SearchMaxTotalResults  ConfigKey = "search.max_total_results"
	SearchMaxIncludeDepth  ConfigKey = "search.max_include_depth"
	SearchMaxIncludes      ConfigKey = "search.max_includes"
	FormatDefault          ConfigKey = "format.default"
	BundleMaxEntries       ConfigKey = "bundle.max_entries"

	InteractionsSystemBatch           ConfigKey = "interactions.system.batch"
	InteractionsSystemTransaction     ConfigKey = "interactions.system.transaction"
	InteractionsSystemHistoryBundle   ConfigKey = "interactions.system.history_bundle"
	InteractionsSystemCapabilities    ConfigKey = "interactions.system.capabilities"
	InteractionsSystemSearch          ConfigKey = "interactions.system.search"
	InteractionsSystemHistory         ConfigKey = "interactions.system.history"
	InteractionsOperationsSystem      ConfigKey = "interactions.operations.system"
	InteractionsTypeSearch            ConfigKey = "interactions.type.search"
	InteractionsTypeHistory           ConfigKey = "interactions.type.history"
	InteractionsOperationsTypeLevel   ConfigKey = "interactions.operations.type"
	InteractionsTypeCreate            ConfigKey = "interactions.type.create"
	InteractionsTypeConditionalUpdate ConfigKey = "interactions.type.conditional_update"
	InteractionsTypeConditionalPatch  ConfigKey = "interactions.type.conditional_patch"
	InteractionsTypeConditionalDelete ConfigKey = "interactions.type.conditional_delete"
	InteractionsInstanceRead                  ConfigKey = "interactions.instance.read"
	InteractionsInstanceVread                 ConfigKey = "interactions.instance.vread"
	InteractionsInstanceUpdate                ConfigKey = "interactions.instance.update"
	InteractionsInstancePatch                 ConfigKey = "interactions.instance.patch"
	InteractionsInstanceDelete                ConfigKey = "interactions.instance.delete"
	InteractionsInstanceHistory                ConfigKey = "interactions.instance.history"
	InteractionsInstanceDeleteHistory          ConfigKey = "interactions.instance.delete_history"
	InteractionsInstanceDeleteHistoryVersion   ConfigKey = "interactions.instance.delete_history_version"
	InteractionsOperationsInstance             ConfigKey = "interactions.operations.instance"
)

// keyKind records each key's ValueKind so Service.Set can reject a
// malformed override before it reaches the database (spec §4.9: "Updates
// go through a service that validates against the key's type").
var keyKind = map[ConfigKey]ValueKind{
	LoggingLevel: KindEnum,

	SearchDefaultCount:    KindInteger,
	SearchMaxCount:        KindInteger,
	SearchMaxTotalResults: KindInteger,
	SearchMaxIncludeDepth: KindInteger,
	SearchMaxIncludes:     KindInteger,
	FormatDefault:         KindEnum,
	BundleMaxEntries:      KindInteger,
}

func init() {
	for _, k := range []ConfigKey{
		InteractionsSystemBatch, InteractionsSystemTransaction, InteractionsSystemHistoryBundle,
		InteractionsSystemCapabilities, InteractionsSystemSearch, InteractionsSystemHistory,
		InteractionsOperationsSystem, InteractionsTypeSearch, InteractionsTypeHistory,
		InteractionsOperationsTypeLevel, InteractionsTypeCreate, InteractionsTypeConditionalUpdate,
		InteractionsTypeConditionalPatch, InteractionsTypeConditionalDelete, InteractionsInstanceRead,
		InteractionsInstanceVread, InteractionsInstanceUpdate, InteractionsInstancePatch,
		InteractionsInstanceDelete, InteractionsInstanceHistory, InteractionsInstanceDeleteHistory,
		InteractionsInstanceDeleteHistoryVersion, InteractionsOperationsInstance,
	} {
		keyKind[k] = KindBoolean
	}
}

// Kind returns the declared ValueKind for key, or KindString if key is
// not in the closed set (an unknown key is treated as an opaque string
// override rather than rejected, matching the source's permissive
// unknown-key handling in the database layer).
func (k ConfigKey) Kind() ValueKind {
	if kind, ok := keyKind[k]; ok {
		return kind
	}
	return KindString
}

// enumValues lists the accepted literals for KindEnum keys.
var enumValues = map[ConfigKey][]string{
	LoggingLevel:  {"debug", "info", "warn", "error"},
	FormatDefault: {"application/fhir+json", "application/fhir+xml"},
}
