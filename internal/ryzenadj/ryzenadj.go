//go:build linux && cgo

package ryzenadj

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

// libryzenadj is loaded at runtime like the reference tooling does, so the
// daemon binary has no link-time dependency on it.
static void *call_init(void *fn) { return ((void *(*)(void))fn)(); }
static void call_cleanup(void *fn, void *ry) { ((void (*)(void *))fn)(ry); }
static int call_refresh(void *fn, void *ry) { return ((int (*)(void *))fn)(ry); }
static float call_get(void *fn, void *ry) { return ((float (*)(void *))fn)(ry); }
static int call_set(void *fn, void *ry, unsigned long value) {
	return ((int (*)(void *, unsigned long))fn)(ry, value);
}
*/
import "C"

import (
	"math"
	"unsafe"

	"codeberg.org/anhol/ryzenppd/internal/errors"
	"codeberg.org/anhol/ryzenppd/internal/logger"
)

const libName = "libryzenadj.so"

const roundFactor = 1000 // three decimals, matching the SMU table resolution

type adjuster struct {
	lib     unsafe.Pointer
	ry      unsafe.Pointer
	cleanup unsafe.Pointer
	refresh unsafe.Pointer
	getters map[string]unsafe.Pointer
	setters map[string]unsafe.Pointer
}

// Open loads libryzenadj, initializes the SMU access handle and resolves the
// get/set entry points for every configured limit
func Open(limits []string) (Adjuster, error) {
	errFactory := errors.New()

	name := C.CString(libName)
	defer C.free(unsafe.Pointer(name))

	lib := C.dlopen(name, C.RTLD_NOW)
	if lib == nil {
		return nil, errFactory.WithData(ErrLibraryUnavailable, dlError())
	}

	a := &adjuster{
		lib:     lib,
		getters: make(map[string]unsafe.Pointer, len(limits)),
		setters: make(map[string]unsafe.Pointer, len(limits)),
	}

	initFn, err := a.symbol("init_ryzenadj")
	if err != nil {
		a.closeLib()
		return nil, err
	}
	if a.cleanup, err = a.symbol("cleanup_ryzenadj"); err != nil {
		a.closeLib()
		return nil, err
	}
	if a.refresh, err = a.symbol("refresh_table"); err != nil {
		a.closeLib()
		return nil, err
	}

	for _, limit := range limits {
		if a.getters[limit], err = a.symbol("get_" + limit); err != nil {
			a.closeLib()
			return nil, errFactory.WithData(ErrUnknownLimit, limit)
		}
		if a.setters[limit], err = a.symbol("set_" + limit); err != nil {
			a.closeLib()
			return nil, errFactory.WithData(ErrUnknownLimit, limit)
		}
	}

	a.ry = C.call_init(initFn)
	if a.ry == nil {
		a.closeLib()
		return nil, errFactory.WithMessage(ErrInitFailed, "could not initialize RyzenAdj")
	}

	return a, nil
}

func (a *adjuster) symbol(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	fn := C.dlsym(a.lib, cname)
	if fn == nil {
		return nil, errors.New().WithData(ErrInitFailed, "missing symbol: "+name)
	}

	return fn, nil
}

func (a *adjuster) Refresh() {
	C.call_refresh(a.refresh, a.ry)
}

func (a *adjuster) Get(limit string) (float64, error) {
	fn, ok := a.getters[limit]
	if !ok {
		return 0, errors.New().WithData(ErrUnknownLimit, limit)
	}

	value := float64(C.call_get(fn, a.ry))
	if math.IsNaN(value) {
		return 0, errors.New().WithMessage(ErrValueUnavailable, "get_"+limit+" returned no value")
	}

	return math.Round(value*roundFactor) / roundFactor, nil
}

func (a *adjuster) Set(limit string, value int) error {
	fn, ok := a.setters[limit]
	if !ok {
		return errors.New().WithData(ErrUnknownLimit, limit)
	}

	return statusError("set_"+limit, int(C.call_set(fn, a.ry, C.ulong(value))))
}

func (a *adjuster) Close() {
	if a.ry != nil {
		C.call_cleanup(a.cleanup, a.ry)
		a.ry = nil
	}
	a.closeLib()
}

func (a *adjuster) closeLib() {
	if a.lib != nil {
		if C.dlclose(a.lib) != 0 {
			logger.Warn().Msgf("Failed to unload %s: %s", libName, dlError())
		}
		a.lib = nil
	}
}

func dlError() string {
	if msg := C.dlerror(); msg != nil {
		return C.GoString(msg)
	}

	return "unknown dlopen error"
}
