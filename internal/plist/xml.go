package plist

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
	`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n" +
	`<plist version="1.0">` + "\n"

// MarshalXML renders v as an Apple XML property list, the format the
// server-initiated FCUP Request envelope is sent in.
func MarshalXML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	if err := writeXMLValue(&buf, v, 0); err != nil {
		return nil, err
	}
	buf.WriteString("\n</plist>\n")
	return buf.Bytes(), nil
}

func writeXMLValue(buf *bytes.Buffer, v interface{}, indent int) error {
	pad := strings.Repeat("\t", indent)
	switch t := v.(type) {
	case nil:
		fmt.Fprintf(buf, "%s<string></string>", pad)
	case bool:
		if t {
			fmt.Fprintf(buf, "%s<true/>", pad)
		} else {
			fmt.Fprintf(buf, "%s<false/>", pad)
		}
	case string:
		fmt.Fprintf(buf, "%s<string>%s</string>", pad, xmlEscape(t))
	case []byte:
		fmt.Fprintf(buf, "%s<data>%s</data>", pad, base64.StdEncoding.EncodeToString(t))
	case float32:
		fmt.Fprintf(buf, "%s<real>%s</real>", pad, strconv.FormatFloat(float64(t), 'g', -1, 64))
	case float64:
		fmt.Fprintf(buf, "%s<real>%s</real>", pad, strconv.FormatFloat(t, 'g', -1, 64))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		fmt.Fprintf(buf, "%s<integer>%d</integer>", pad, toInt64(t))
	case Dict:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(buf, "%s<dict>\n", pad)
		for _, k := range keys {
			fmt.Fprintf(buf, "%s\t<key>%s</key>\n", pad, xmlEscape(k))
			if err := writeXMLValue(buf, t[k], indent+1); err != nil {
				return err
			}
			buf.WriteString("\n")
		}
		fmt.Fprintf(buf, "%s</dict>", pad)
	case []interface{}:
		fmt.Fprintf(buf, "%s<array>\n", pad)
		for _, item := range t {
			if err := writeXMLValue(buf, item, indent+1); err != nil {
				return err
			}
			buf.WriteString("\n")
		}
		fmt.Fprintf(buf, "%s</array>", pad)
	default:
		return fmt.Errorf("plist: unsupported XML value type %T", v)
	}
	return nil
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
