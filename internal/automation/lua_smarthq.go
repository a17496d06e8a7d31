//go:build !no_automation

package automation

import (
	"context"
	"time"

	"smarthq-bridge/internal/smarthq"

	lua "github.com/yuin/gopher-lua"
)

// registerSmartHQModule registers the `smarthq` global table in a Lua state.
func registerSmartHQModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return smarthqOn(L, vm)
	}))

	mod.RawSetString("command", L.NewFunction(func(L *lua.LState) int {
		return smarthqCommand(L, e)
	}))

	mod.RawSetString("state", L.NewFunction(func(L *lua.LState) int {
		return smarthqState(L, e)
	}))

	mod.RawSetString("devices", L.NewFunction(func(L *lua.LState) int {
		return smarthqDevices(L, e)
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return smarthqAfter(L, vm, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return smarthqLog(L, e)
	}))

	L.SetGlobal("smarthq", mod)
}

const maxHandlersPerScript = 100

// smarthq.on(type, filter, callback)
func smarthqOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{
		eventType: eventType,
		fn:        fn,
	}

	if v := filterTable.RawGetString("device_id"); v != lua.LNil {
		h.deviceID = v.String()
	}
	if v := filterTable.RawGetString("attribute"); v != lua.LNil {
		h.attribute = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// smarthq.command(device_id, key, payload)
//
// key is a table {device=, service=, domain=} naming the sub-service.
// payload carries exactly one of on/mode/value/celsius, which also
// selects the command verb.
func smarthqCommand(L *lua.LState, e *Engine) int {
	deviceID := L.CheckString(1)
	keyTable := L.CheckTable(2)
	payload := L.CheckTable(3)

	key := smarthq.Key{
		ServiceDeviceType: keyTable.RawGetString("device").String(),
		ServiceType:       keyTable.RawGetString("service").String(),
		DomainType:        keyTable.RawGetString("domain").String(),
	}
	if key.ServiceDeviceType == "" || key.ServiceType == "" {
		L.ArgError(2, "key needs device and service fields")
		return 0
	}

	cmd, ok := commandFromTable(payload)
	if !ok {
		L.ArgError(3, "payload needs one of on, mode, value, celsius")
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := e.cloud.SendCommand(ctx, smarthq.NewCommand(deviceID, key, cmd)); err != nil {
		e.logger.Error("script command", "device_id", deviceID, "err", err)
	}
	return 0
}

func commandFromTable(t *lua.LTable) (smarthq.Command, bool) {
	if v := t.RawGetString("on"); v != lua.LNil {
		on := lua.LVAsBool(v)
		return smarthq.Command{CommandType: smarthq.CommandToggleSet, On: &on}, true
	}
	if v := t.RawGetString("mode"); v != lua.LNil {
		return smarthq.Command{CommandType: smarthq.CommandModeSet, Mode: v.String()}, true
	}
	if v := t.RawGetString("value"); v != lua.LNil {
		if n, ok := v.(lua.LNumber); ok {
			f := float64(n)
			return smarthq.Command{CommandType: smarthq.CommandIntegerSet, Value: &f}, true
		}
	}
	if v := t.RawGetString("celsius"); v != lua.LNil {
		if n, ok := v.(lua.LNumber); ok {
			f := float64(n)
			return smarthq.Command{CommandType: smarthq.CommandTemperatureSet, Celsius: &f}, true
		}
	}
	return smarthq.Command{}, false
}

// smarthq.state(device_id, service_id) — returns the raw state table or nil
func smarthqState(L *lua.LState, e *Engine) int {
	deviceID := L.CheckString(1)
	serviceID := L.CheckString(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := e.cloud.ServiceState(ctx, deviceID, serviceID)
	if err != nil {
		e.logger.Warn("script state read", "device_id", deviceID, "service_id", serviceID, "err", err)
		L.Push(lua.LNil)
		return 1
	}

	tbl := L.NewTable()
	for k, v := range state {
		tbl.RawSetString(k, goToLua(L, v))
	}
	L.Push(tbl)
	return 1
}

// smarthq.devices() — returns a table of all appliances on the account
func smarthqDevices(L *lua.LState, e *Engine) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	devices, err := e.cloud.ListDevices(ctx)
	if err != nil {
		e.logger.Warn("script device list", "err", err)
		L.Push(L.NewTable())
		return 1
	}

	tbl := L.NewTable()
	for i, dev := range devices {
		d := L.NewTable()
		d.RawSetString("device_id", lua.LString(dev.DeviceID))
		d.RawSetString("nickname", lua.LString(dev.Nickname))
		d.RawSetString("model", lua.LString(dev.Model))
		d.RawSetString("serial", lua.LString(dev.Serial))
		tbl.RawSetInt(i+1, d)
	}

	L.Push(tbl)
	return 1
}

// smarthq.after(seconds, callback) — delayed execution
func smarthqAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		// Send callback execution to the VM's command channel
		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// smarthq.log(msg)
func smarthqLog(L *lua.LState, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "msg", msg)
	return 0
}
