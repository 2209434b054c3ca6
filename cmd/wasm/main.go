//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"strings"
	"syscall/js"

	"github.com/hack-pad/hackpadfs/indexeddb"
	"go.uber.org/zap"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/dialog"
	"github.com/NickPeut/BasePlanFactor/internal/scheme"
	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/internal/store"
	"github.com/NickPeut/BasePlanFactor/pkg/projection"
)

// Version info
const Version = "1.0.0"

// Global state
var (
	kv         store.KV
	sessions   *session.Cache
	registry   *scheme.Registry
	controller *dialog.Controller
	renderer   = &jsRenderer{}
	logger     *zap.Logger
)

func main() {
	logger, _ = zap.NewDevelopment()
	println("[BasePlanFactor] WASM Ready v" + Version)

	// Register exports
	js.Global().Set("BasePlanFactor", js.ValueOf(map[string]interface{}{
		"version":      js.FuncOf(getVersion),
		"initialize":   js.FuncOf(initialize),
		"setRenderer":  js.FuncOf(setRenderer),
		"setAuthToken": js.FuncOf(setAuthToken),
		// Scheme registry API
		"listSchemes":  js.FuncOf(listSchemes),
		"createScheme": js.FuncOf(createScheme),
		"deleteScheme": js.FuncOf(deleteScheme),
		// Dialog API
		"restore":      js.FuncOf(restore),
		"selectScheme": js.FuncOf(selectScheme),
		"startDialog":  js.FuncOf(startDialog),
		"submitAnswer": js.FuncOf(submitAnswer),
		"answerYes":    js.FuncOf(answerYes),
		"answerNo":     js.FuncOf(answerNo),
		"resetDialog":  js.FuncOf(resetDialog),
		"toggleFactor": js.FuncOf(toggleFactor),
	}))

	select {}
}

// initialize wires the client core against IndexedDB-backed storage.
// Args: [baseURL string]
func initialize(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1 arg: baseURL (string)")
	}
	baseURL := args[0].String()

	fs, err := indexeddb.NewFS(context.Background(), "baseplanfactor", indexeddb.Options{})
	if err != nil {
		return errorResult("failed to create idb fs: " + err.Error())
	}

	kv = store.NewFileKV(fs)
	sessions = session.NewCache(kv, logger)

	client := api.NewClient(baseURL,
		api.WithLogger(logger),
		api.WithTokenSource(func() (string, bool) {
			return kv.Get(store.KeyAuthToken)
		}),
	)
	registry = scheme.NewRegistry(client, kv, sessions, logger)
	controller = dialog.NewController(client, sessions, renderer, logger)

	return successResult("initialized")
}

// setRenderer installs the page callbacks the core renders through.
// Args: [callbacks object] with onMessage, onTranscript, onGraph, onScores
// and onInputMode function properties, each optional.
func setRenderer(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return errorResult("requires 1 arg: callbacks (object)")
	}
	renderer.bind(args[0])
	return successResult("renderer bound")
}

// setAuthToken stores or clears the bearer token. A blank token clears.
// Args: [token string]
func setAuthToken(this js.Value, args []js.Value) interface{} {
	if kv == nil {
		return errorResult("not initialized")
	}
	token := ""
	if len(args) > 0 {
		token = strings.TrimSpace(args[0].String())
	}
	if token == "" {
		if err := kv.Remove(store.KeyAuthToken); err != nil {
			return errorResult("failed to clear token: " + err.Error())
		}
		return successResult("token cleared")
	}
	if err := kv.Set(store.KeyAuthToken, token); err != nil {
		return errorResult("failed to store token: " + err.Error())
	}
	return successResult("token stored")
}

// listSchemes fetches the scheme list.
// Args: [onResult func(jsonString)]
func listSchemes(this js.Value, args []js.Value) interface{} {
	if registry == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		return errorResult("requires 1 arg: onResult (function)")
	}
	callback := args[0]

	go func() {
		schemes, err := registry.List(context.Background())
		if err != nil {
			callback.Invoke(errorResult(err.Error()))
			return
		}
		data, _ := json.Marshal(schemes)
		callback.Invoke(string(data))
	}()
	return successResult("listing")
}

// createScheme creates a scheme, activates it and starts its dialog.
// Args: [name string, onResult func(jsonString)]
func createScheme(this js.Value, args []js.Value) interface{} {
	if registry == nil {
		return errorResult("not initialized")
	}
	if len(args) < 2 || args[1].Type() != js.TypeFunction {
		return errorResult("requires 2 args: name (string), onResult (function)")
	}
	name := args[0].String()
	callback := args[1]

	go func() {
		ctx := context.Background()
		created, err := registry.Create(ctx, name)
		if err != nil {
			callback.Invoke(errorResult(err.Error()))
			return
		}
		if err := controller.SelectScheme(ctx, created.ID); err != nil {
			logger.Warn("start after create failed", zap.Error(err))
		}
		data, _ := json.Marshal(created)
		callback.Invoke(string(data))
	}()
	return successResult("creating")
}

// deleteScheme deletes a scheme. When the active one goes, the replacement
// scheme's dialog is selected automatically.
// Args: [id int, onResult func(jsonString)]
func deleteScheme(this js.Value, args []js.Value) interface{} {
	if registry == nil {
		return errorResult("not initialized")
	}
	if len(args) < 2 || args[1].Type() != js.TypeFunction {
		return errorResult("requires 2 args: id (int), onResult (function)")
	}
	id := int64(args[0].Int())
	callback := args[1]

	go func() {
		ctx := context.Background()
		if err := registry.Delete(ctx, id); err != nil {
			callback.Invoke(errorResult(err.Error()))
			return
		}
		if next, ok := registry.ActiveScheme(); ok {
			if err := controller.SelectScheme(ctx, next); err != nil {
				logger.Warn("select after delete failed", zap.Error(err))
			}
		}
		callback.Invoke(successResult("deleted"))
	}()
	return successResult("deleting")
}

// restore reconciles the saved active scheme against a fresh list and
// resumes its dialog. Call once on page load, after setRenderer.
// Args: [onResult func(jsonString)]
func restore(this js.Value, args []js.Value) interface{} {
	if registry == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		return errorResult("requires 1 arg: onResult (function)")
	}
	callback := args[0]

	go func() {
		ctx := context.Background()
		resumed, err := registry.RestoreActive(ctx)
		if err != nil {
			callback.Invoke(errorResult(err.Error()))
			return
		}
		if resumed != nil {
			if err := controller.SelectScheme(ctx, resumed.ID); err != nil {
				logger.Warn("resume failed", zap.Error(err))
			}
		}
		schemes, _ := registry.Cached()
		data, _ := json.Marshal(schemes)
		callback.Invoke(string(data))
	}()
	return successResult("restoring")
}

// selectScheme focuses a scheme, resuming its cached session when one exists.
// Args: [id int]
func selectScheme(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("requires 1 arg: id (int)")
	}
	id := int64(args[0].Int())
	registry.SetActive(id)

	go func() {
		if err := controller.SelectScheme(context.Background(), id); err != nil {
			logger.Warn("select scheme failed", zap.Error(err))
		}
	}()
	return successResult("selecting")
}

// startDialog starts a dialog that is not bound to a scheme.
func startDialog(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	go func() {
		if err := controller.StartUnscoped(context.Background()); err != nil {
			logger.Warn("start failed", zap.Error(err))
		}
	}()
	return successResult("starting")
}

// submitAnswer sends free-text input.
// Args: [text string]
func submitAnswer(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("requires 1 arg: text (string)")
	}
	text := args[0].String()

	go func() {
		if err := controller.SubmitAnswer(context.Background(), text); err != nil {
			logger.Debug("answer rejected", zap.Error(err))
		}
	}()
	return successResult("submitting")
}

// answerYes submits the fixed positive answer.
func answerYes(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	go func() {
		if err := controller.Yes(context.Background()); err != nil {
			logger.Debug("yes rejected", zap.Error(err))
		}
	}()
	return successResult("submitting")
}

// answerNo submits the fixed negative answer.
func answerNo(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	go func() {
		if err := controller.No(context.Background()); err != nil {
			logger.Debug("no rejected", zap.Error(err))
		}
	}()
	return successResult("submitting")
}

// resetDialog clears the focused session and starts it over.
func resetDialog(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	go func() {
		if err := controller.Reset(context.Background()); err != nil {
			logger.Warn("reset failed", zap.Error(err))
		}
	}()
	return successResult("resetting")
}

// toggleFactor switches a factor's label overlay on or off.
// Args: [name string, on bool]
func toggleFactor(this js.Value, args []js.Value) interface{} {
	if controller == nil {
		return errorResult("not initialized")
	}
	if len(args) < 2 {
		return errorResult("requires 2 args: name (string), on (bool)")
	}
	controller.ToggleFactor(args[0].String(), args[1].Bool())
	return successResult("toggled")
}

// getVersion returns the module version
func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// =============================================================================
// Renderer bridge
// =============================================================================

// jsRenderer forwards controller output to the page callbacks as JSON
// strings. Missing callbacks are skipped, so a page can bind only the views
// it shows.
type jsRenderer struct {
	callbacks js.Value
	bound     bool
}

func (r *jsRenderer) bind(callbacks js.Value) {
	r.callbacks = callbacks
	r.bound = true
}

func (r *jsRenderer) call(name string, payload interface{}) {
	if !r.bound {
		return
	}
	fn := r.callbacks.Get(name)
	if fn.Type() != js.TypeFunction {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fn.Invoke(string(data))
}

func (r *jsRenderer) AppendMessage(m session.Message) {
	r.call("onMessage", m)
}

func (r *jsRenderer) ResetTranscript(msgs []session.Message) {
	if msgs == nil {
		msgs = []session.Message{}
	}
	r.call("onTranscript", msgs)
}

func (r *jsRenderer) RenderGraph(nodes []projection.GraphNode, edges []projection.GraphEdge) {
	if nodes == nil {
		nodes = []projection.GraphNode{}
	}
	if edges == nil {
		edges = []projection.GraphEdge{}
	}
	r.call("onGraph", map[string]interface{}{
		"nodes": nodes,
		"edges": edges,
	})
}

func (r *jsRenderer) RenderScores(legend []projection.LegendEntry, rows []projection.TableRow) {
	if legend == nil {
		legend = []projection.LegendEntry{}
	}
	if rows == nil {
		rows = []projection.TableRow{}
	}
	r.call("onScores", map[string]interface{}{
		"legend": legend,
		"rows":   rows,
	})
}

func (r *jsRenderer) SetInputMode(mode dialog.InputMode) {
	switch mode {
	case dialog.InputFree:
		r.call("onInputMode", "free")
	case dialog.InputYesNo:
		r.call("onInputMode", "yesno")
	default:
		r.call("onInputMode", "disabled")
	}
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}
