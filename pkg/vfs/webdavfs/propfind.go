package webdavfs

import (
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// multistatus mirrors the PROPFIND 207 response body. Single-element
// and list forms both decode into the slices.
type multistatus struct {
	XMLName   xml.Name   `xml:"multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	DisplayName      string        `xml:"displayname"`
	GetContentLength string        `xml:"getcontentlength"`
	GetContentType   string        `xml:"getcontenttype"`
	GetLastModified  string        `xml:"getlastmodified"`
	ResourceType     *resourceType `xml:"resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

// resource is one parsed multistatus response: the decoded href plus
// the properties of its first successful propstat.
type resource struct {
	Href         string
	DisplayName  string
	IsCollection bool
	Size         *int64
	ContentType  string
	LastModified *time.Time
}

func parseMultistatus(data []byte) ([]resource, error) {
	ms := multistatus{}
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, errors.Wrap(err, "could not parse multistatus body")
	}

	resources := make([]resource, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		res, ok := parseResponse(r)
		if !ok {
			continue
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func parseResponse(r response) (resource, bool) {
	href, err := url.PathUnescape(strings.TrimSpace(r.Href))
	if err != nil {
		href = strings.TrimSpace(r.Href)
	}

	var found *propstat
	for i := range r.Propstats {
		if propstatOK(r.Propstats[i].Status) {
			found = &r.Propstats[i]
			break
		}
	}
	if found == nil {
		return resource{}, false
	}

	res := resource{
		Href:         href,
		DisplayName:  strings.TrimSpace(found.Prop.DisplayName),
		ContentType:  strings.TrimSpace(found.Prop.GetContentType),
		IsCollection: found.Prop.ResourceType != nil && found.Prop.ResourceType.Collection != nil,
	}

	if raw := strings.TrimSpace(found.Prop.GetContentLength); raw != "" {
		if size, err := strconv.ParseInt(raw, 10, 64); err == nil {
			res.Size = &size
		}
	}

	if raw := strings.TrimSpace(found.Prop.GetLastModified); raw != "" {
		if mtime, ok := parseHTTPDate(raw); ok {
			res.LastModified = &mtime
		}
	}

	return res, true
}

// propstatOK reports whether a propstat status line carries a 2xx code.
func propstatOK(status string) bool {
	fields := strings.Fields(status)
	for _, field := range fields {
		if code, err := strconv.Atoi(field); err == nil {
			return code >= 200 && code < 300
		}
	}
	return false
}

// parseHTTPDate accepts IMF-fixdate (RFC 1123) with an ISO-8601
// fallback, the two formats seen from servers in the wild.
func parseHTTPDate(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// pathOfHref extracts the path component of a PROPFIND href, which may
// be either absolute ("http://host/a/b") or path-only ("/a/b").
func pathOfHref(href string) string {
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		return u.Path
	}
	return href
}
