package service

import (
	v1 "github.com/yola1107/puppeteer/api/relay/v1"
	"github.com/yola1107/puppeteer/internal/biz/registry"
)

func fromWire(v *v1.Viewer) (registry.Viewer, bool) {
	if v == nil {
		return registry.Viewer{}, false
	}
	rv := registry.Viewer{Service: v.Service, ID: v.ID, Name: v.Name, Picture: v.Picture}
	return rv, rv.Valid()
}

func toWire(v registry.Viewer) *v1.Viewer {
	return &v1.Viewer{Service: v.Service, ID: v.ID, Name: v.Name, Picture: v.Picture}
}
