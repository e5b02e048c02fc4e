// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Hooks and interfaces for hot-reload-compatible components. cmd/'s
// SIGHUP handler calls TriggerHotReload after re-running LoadNIConfig,
// running every hook added with RegisterReloadHook. No component in this
// module registers one, so the logger built by control.NewLogger keeps
// its startup level across a reload.

package control

var reloadHooks []func()

// RegisterReloadHook adds a component reload listener.
func RegisterReloadHook(fn func()) {
	reloadHooks = append(reloadHooks, fn)
}

// TriggerHotReload dispatches all reload hooks.
func TriggerHotReload() {
	for _, fn := range reloadHooks {
		go fn()
	}
}
