// ABOUTME: Dispatches inbound container-level messages to AttachCoordinator, AliasCoordinator, or the channel-op pipeline, and signals by envelope address.
// ABOUTME: The channel-op pipeline also walks op payloads for serialized handle references and reports them to GC, unless detection is delegated to the store.

package dstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
)

// OpRouter is the single entry point the parent runtime calls for every
// sequenced container-level op.
type OpRouter struct {
	table   *Table
	attach  *AttachCoordinator
	alias   *AliasCoordinator
	gc      *GCManager
	runtime Runtime
	storage BlobStorage

	detectOutboundRoutesViaDDSKey bool

	logger *slog.Logger
}

// OpRouterConfig bundles OpRouter's dependencies and its one configuration
// flag.
type OpRouterConfig struct {
	Table                         *Table
	Attach                        *AttachCoordinator
	Alias                         *AliasCoordinator
	GC                            *GCManager
	Runtime                       Runtime
	Storage                       BlobStorage
	DetectOutboundRoutesViaDDSKey bool
	Logger                        *slog.Logger
}

// NewOpRouter wires an OpRouter from cfg.
func NewOpRouter(cfg OpRouterConfig) *OpRouter {
	return &OpRouter{
		table:                         cfg.Table,
		attach:                        cfg.Attach,
		alias:                         cfg.Alias,
		gc:                            cfg.GC,
		runtime:                       cfg.Runtime,
		storage:                       cfg.Storage,
		detectOutboundRoutesViaDDSKey: cfg.DetectOutboundRoutesViaDDSKey,
		logger:                        cfg.Logger.With("component", "op_router"),
	}
}

// Process dispatches one inbound container-level message.
func (r *OpRouter) Process(ctx context.Context, msg ContainerMessage, local bool, localMeta any) error {
	switch msg.Type {
	case ContainerMessageAttach:
		var attach AttachMessage
		if err := json.Unmarshal(msg.Content, &attach); err != nil {
			return newDataCorruption("process attach", err)
		}
		return r.attach.ProcessAttach(ctx, attach, local, r.storage)

	case ContainerMessageAlias:
		var alias AliasMessage
		if err := json.Unmarshal(msg.Content, &alias); err != nil {
			return newDataCorruption("process alias", err)
		}
		return r.alias.ProcessAlias(alias, local)

	case ContainerMessageDataStoreOp:
		var env Envelope
		if err := json.Unmarshal(msg.Content, &env); err != nil {
			return newDataCorruption("process data store op", err)
		}
		return r.processDataStoreOp(ctx, env, local, localMeta)

	default:
		return newInternalConsistency("process container message", ErrUnknownMessageType)
	}
}

// ProcessSignal dispatches an inbound signal by envelope address; an empty
// address means the signal targets the collection itself, which today has
// no signal surface of its own and so is simply logged.
func (r *OpRouter) ProcessSignal(ctx context.Context, env SignalEnvelope, local bool) error {
	if env.Address == "" {
		r.logger.Debug("signal addressed to collection, no-op")
		return nil
	}

	sc := r.table.Get(env.Address)
	if sc == nil {
		r.logger.Warn("signal to unknown store", "data_store_id", env.Address)
		return newTransient("process signal", ErrNoContext)
	}
	if sc.IsDeleted() {
		r.logger.Error("signal to deleted store", "data_store_id", env.Address)
		return nil
	}
	return sc.ProcessSignal(ctx, env.Contents, local)
}

// processDataStoreOp unwraps an envelope, routes it to its store, detects
// outbound references, and notifies GC of the change.
func (r *OpRouter) processDataStoreOp(ctx context.Context, env Envelope, local bool, localMeta any) error {
	if r.table.IsDeleted(env.Address) {
		r.logger.Error("op addressed to deleted store, dropping", "data_store_id", env.Address)
		return nil
	}
	sc := r.table.Get(env.Address)
	if sc == nil {
		return newDataProcessing("process data store op", ErrNoContext)
	}

	if !r.detectOutboundRoutesViaDDSKey {
		r.detectOutboundReferences(env)
	}

	if err := sc.Process(ctx, env.Contents, local, localMeta); err != nil {
		return err
	}

	r.gc.NodeUpdated("/"+env.Address, "Changed")
	return nil
}

// detectOutboundReferences walks the op's contents for the serialized-handle
// shape {type: "__fluid_handle__", url: string} and, for every one found,
// emits an outbound edge from /{dataStoreId}/{ddsAddress} to the handle's
// url. ddsAddress is the first "address" property encountered during the
// walk, matching the legacy heuristic of treating it as the originating
// DDS's sub-path.
//
// The walk is order-preserving: it parses via json.Decoder's token stream
// rather than unmarshaling into map[string]any, whose key order Go does not
// preserve and randomizes across runs. Detected targets and ddsAddress must
// be a pure function of the op's source-text traversal order.
func (r *OpRouter) detectOutboundReferences(env Envelope) {
	dec := json.NewDecoder(bytes.NewReader(env.Contents.Content))
	value, err := decodeOrderedValue(dec)
	if err != nil {
		return
	}

	ddsAddress := ""
	var targets []string
	walkOrdered(value, &ddsAddress, &targets)

	if len(targets) == 0 {
		return
	}
	from := "/" + env.Address
	if ddsAddress != "" {
		from += "/" + ddsAddress
	}
	for _, target := range targets {
		r.runtime.AddedOutboundReference(from, target)
	}
}

// ordField is one key/value pair of a JSON object, in the order it appeared
// in the source text.
type ordField struct {
	key   string
	value any
}

// ordObject is a JSON object decoded with its field order preserved.
type ordObject []ordField

func (o ordObject) get(key string) (any, bool) {
	for _, f := range o {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// decodeOrderedValue reads one JSON value from dec, returning ordObject for
// objects, []any for arrays, and the token itself (string, float64, bool,
// nil) for scalars.
func decodeOrderedValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeOrderedToken(dec, tok)
}

func decodeOrderedToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeOrderedObject(dec)
		case '[':
			return decodeOrderedArray(dec)
		}
		return nil, nil
	default:
		return tok, nil
	}
}

func decodeOrderedObject(dec *json.Decoder) (ordObject, error) {
	var obj ordObject
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, err := decodeOrderedToken(dec, valTok)
		if err != nil {
			return nil, err
		}
		obj = append(obj, ordField{key: key, value: val})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return obj, nil
}

func decodeOrderedArray(dec *json.Decoder) ([]any, error) {
	var arr []any
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, err := decodeOrderedToken(dec, tok)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return arr, nil
}

// walkOrdered recurses through a value produced by decodeOrderedValue,
// recording the first "address" string it sees into ddsAddress and every
// "url" value found under a {"type": "__fluid_handle__"} object into
// targets, in traversal order.
func walkOrdered(v any, ddsAddress *string, targets *[]string) {
	switch node := v.(type) {
	case ordObject:
		if *ddsAddress == "" {
			if addr, ok := node.get("address"); ok {
				if s, ok := addr.(string); ok {
					*ddsAddress = s
				}
			}
		}
		if t, ok := node.get("type"); ok {
			if s, ok := t.(string); ok && s == serializedHandleType {
				if url, ok := node.get("url"); ok {
					if s, ok := url.(string); ok {
						*targets = append(*targets, s)
					}
				}
			}
		}
		for _, field := range node {
			walkOrdered(field.value, ddsAddress, targets)
		}
	case []any:
		for _, child := range node {
			walkOrdered(child, ddsAddress, targets)
		}
	}
}
