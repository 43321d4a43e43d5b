package payload

import (
	"fmt"
	"strconv"

	"github.com/omniaweb/hnmigrate/internal/document"
)

// CameraService is one camera service of an export with the cameras it serves.
type CameraService struct {
	Label   string   `json:"label"`
	Cameras []string `json:"cameras"`
}

// Summary is a human-oriented recap of an export.
type Summary struct {
	CameraServices []CameraService `json:"camera_services"`
	Mapping        []string        `json:"mapping"`
}

// Summarize describes the camera services and mapping entries of doc, which
// may be a raw export or a payload document. Unknown shapes yield empty lists.
func Summarize(doc *document.Value) Summary {
	s := Summary{
		CameraServices: []CameraService{},
		Mapping:        mappingList(doc),
	}
	for i, svc := range cameraServices(doc) {
		s.CameraServices = append(s.CameraServices, CameraService{
			Label:   serviceLabel(svc, fmt.Sprintf("Camera service %d", i+1)),
			Cameras: cameraList(svc),
		})
	}
	return s
}

// section returns the first truthy spelling of a section at the root or
// under root.
func section(doc *document.Value, upper, lower string) *document.Value {
	return first(doc,
		[]string{upper},
		[]string{lower},
		[]string{"root", upper},
		[]string{"root", lower},
	)
}

func first(v *document.Value, paths ...[]string) *document.Value {
	for _, p := range paths {
		if c := v.Lookup(p...); c.Truthy() {
			return c
		}
	}
	return nil
}

func firstField(v *document.Value, keys ...string) *document.Value {
	for _, k := range keys {
		if c := v.Get(k); c.Truthy() {
			return c
		}
	}
	return nil
}

// text renders a scalar the way it would print in a list.
func text(v *document.Value) string {
	if s, ok := v.Scalar(); ok {
		return s
	}
	if b, ok := v.BoolValue(); ok {
		return strconv.FormatBool(b)
	}
	if v == nil {
		return ""
	}
	return v.String()
}

func cameraServices(doc *document.Value) []*document.Value {
	channels := section(doc, "CHANNELS", "channels")
	if channels.IsArray() {
		return channels.Items()
	}
	if channels.IsObject() {
		list := firstField(channels, "cameraServices", "camera_services", "services", "items")
		if list.IsArray() {
			return list.Items()
		}
	}
	return nil
}

func serviceLabel(svc *document.Value, fallback string) string {
	name := text(firstField(svc, "name", "serviceName", "cameraServiceName", "label", "title", "descr"))
	id := text(firstField(svc, "id", "guid", "serviceGuid", "serviceId"))
	switch {
	case name != "" && id != "":
		return name + " (" + id + ")"
	case name != "":
		return name
	case id != "":
		return id
	default:
		return fallback
	}
}

func cameraList(svc *document.Value) []string {
	cameras := firstField(svc, "cameras", "cameraList", "camera", "channels", "devices")
	out := []string{}
	switch cameras.Kind() {
	case document.KindArray:
		for i, item := range cameras.Items() {
			if s, ok := item.Scalar(); ok {
				out = append(out, s)
				continue
			}
			if item.IsObject() {
				if c := firstField(item, "name", "label", "title", "descr", "id", "guid"); c != nil {
					out = append(out, text(c))
					continue
				}
			}
			out = append(out, fmt.Sprintf("Camera %d", i+1))
		}
	case document.KindObject:
		out = append(out, cameras.Keys()...)
	}
	return out
}

func mappingList(doc *document.Value) []string {
	mapping := section(doc, "MAPPING", "mapping")
	list := mapping
	if !mapping.IsArray() {
		list = firstField(mapping, "services", "serviceList", "items")
	}

	out := []string{}
	if list.IsArray() {
		for i, item := range list.Items() {
			out = append(out, mappingEntry(item, i))
		}
		return out
	}
	if mapping.IsObject() {
		out = append(out, mapping.Keys()...)
	}
	return out
}

func mappingEntry(item *document.Value, i int) string {
	if s, ok := item.Scalar(); ok {
		return s
	}
	if !item.IsObject() {
		return fmt.Sprintf("Service %d", i+1)
	}
	name := text(firstField(item, "serviceName", "name", "label"))
	typ := text(firstField(item, "serviceType", "type"))
	guid := text(firstField(item, "serviceGuid", "guid", "id"))
	switch {
	case name != "" && typ != "":
		return name + " • " + typ
	case name != "" && guid != "":
		return name + " (" + guid + ")"
	case name != "":
		return name
	case typ != "":
		return typ
	case guid != "":
		return guid
	default:
		return fmt.Sprintf("Service %d", i+1)
	}
}
