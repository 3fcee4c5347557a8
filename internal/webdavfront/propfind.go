package webdavfront

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

type multistatus struct {
	XMLName   xml.Name      `xml:"d:multistatus"`
	Xmlns     string        `xml:"xmlns:d,attr"`
	Responses []davResponse `xml:"d:response"`
}

type davResponse struct {
	Href     string      `xml:"d:href"`
	Propstat davPropstat `xml:"d:propstat"`
}

type davPropstat struct {
	Prop   davProp `xml:"d:prop"`
	Status string  `xml:"d:status"`
}

type davProp struct {
	DisplayName      string           `xml:"d:displayname"`
	ResourceType     davResourceType  `xml:"d:resourcetype"`
	GetContentLength *int64           `xml:"d:getcontentlength,omitempty"`
	GetContentType   string           `xml:"d:getcontenttype,omitempty"`
	CreationDate     string           `xml:"d:creationdate"`
	GetLastModified  string           `xml:"d:getlastmodified"`
}

type davResourceType struct {
	Collection *struct{} `xml:"d:collection,omitempty"`
}

// hrefOf renders the URL-encoded href of st below prefix. Directory
// hrefs end with a slash.
func hrefOf(prefix string, st vfs.FileStatus) string {
	href := prefix
	for _, segment := range st.Path.Segments() {
		href += "/" + url.PathEscape(segment)
	}
	if href == "" {
		href = "/"
	}
	if st.IsDirectory && href != "/" {
		href += "/"
	}
	return href
}

func responseOf(prefix string, st vfs.FileStatus, now time.Time) davResponse {
	prop := davProp{
		DisplayName:     st.Path.Filename(),
		CreationDate:    now.UTC().Format(time.RFC3339),
		GetLastModified: now.UTC().Format(http.TimeFormat),
	}

	if st.IsDirectory {
		prop.ResourceType.Collection = &struct{}{}
	} else {
		prop.GetContentLength = st.Size
		if prop.GetContentLength == nil {
			zero := int64(0)
			prop.GetContentLength = &zero
		}
		if st.MimeType != nil {
			prop.GetContentType = *st.MimeType
		}
	}

	return davResponse{
		Href: hrefOf(prefix, st),
		Propstat: davPropstat{
			Prop:   prop,
			Status: "HTTP/1.1 200 OK",
		},
	}
}

func renderMultistatus(responses []davResponse) ([]byte, error) {
	body, err := xml.Marshal(multistatus{Xmlns: "DAV:", Responses: responses})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append([]byte(xml.Header), body...), nil
}

// proppatchForbidden renders the 207 answer of a PROPPATCH: every
// property is reported immutable.
func proppatchForbidden(href string) ([]byte, error) {
	type forbiddenPropstat struct {
		Prop   struct{} `xml:"d:prop"`
		Status string   `xml:"d:status"`
	}
	type forbiddenResponse struct {
		Href     string            `xml:"d:href"`
		Propstat forbiddenPropstat `xml:"d:propstat"`
	}
	type forbiddenMultistatus struct {
		XMLName   xml.Name            `xml:"d:multistatus"`
		Xmlns     string              `xml:"xmlns:d,attr"`
		Responses []forbiddenResponse `xml:"d:response"`
	}

	doc := forbiddenMultistatus{
		Xmlns: "DAV:",
		Responses: []forbiddenResponse{{
			Href:     href,
			Propstat: forbiddenPropstat{Status: "HTTP/1.1 403 Forbidden"},
		}},
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append([]byte(xml.Header), body...), nil
}
