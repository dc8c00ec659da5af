// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ar extracts members from Unix ar archives, the container
// format of static libraries.
package ar

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Magic is the archive file signature.
const Magic = "!<arch>\n"

const hdrSize = 60

// A Member is one file stored in an archive.
type Member struct {
	// Name is the member file name, with the trailing "/" of the ar
	// format removed and long names resolved through the archive's
	// string table.
	Name string

	// Contents aliases the member's bytes within the archive buffer.
	Contents []byte
}

// hdr is the fixed-size ASCII header preceding each member.
type hdr struct {
	name []byte // 16 bytes
	size []byte // 10 bytes, decimal
}

func parseHdr(b []byte) hdr {
	return hdr{name: b[0:16], size: b[48:58]}
}

func (h hdr) isSymtab() bool {
	return bytes.HasPrefix(h.name, []byte("/ ")) || bytes.HasPrefix(h.name, []byte("/SYM64/ "))
}

func (h hdr) isStrtab() bool {
	return bytes.HasPrefix(h.name, []byte("// "))
}

func (h hdr) dataSize() (int, error) {
	s := strings.TrimSpace(string(h.size))
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad member size %q", s)
	}
	return n, nil
}

// memberName resolves the member name, looking long names up in the
// archive string table.
func (h hdr) memberName(strtab []byte) (string, error) {
	if h.name[0] == '/' && h.name[1] >= '0' && h.name[1] <= '9' {
		// "/123" names the long name at offset 123 in the string
		// table, terminated by "/\n".
		off, err := strconv.Atoi(strings.TrimSpace(string(h.name[1:])))
		if err != nil || off < 0 || off >= len(strtab) {
			return "", fmt.Errorf("bad long name reference %q", h.name)
		}
		end := bytes.Index(strtab[off:], []byte("/\n"))
		if end < 0 {
			return "", fmt.Errorf("unterminated long name at offset %d", off)
		}
		return string(strtab[off : off+end]), nil
	}
	end := bytes.IndexByte(h.name, '/')
	if end < 0 {
		return "", fmt.Errorf("bad member name %q", h.name)
	}
	return string(h.name[:end]), nil
}

// Members parses contents as an ar archive and returns its file
// members in order. The symbol table and string table members are
// consumed internally and not returned. Member contents alias the
// input buffer.
func Members(contents []byte) ([]*Member, error) {
	if !bytes.HasPrefix(contents, []byte(Magic)) {
		return nil, fmt.Errorf("not an archive file")
	}
	pos := len(Magic)

	var strtab []byte
	var members []*Member
	for len(contents)-pos > 1 {
		// Member data is padded to even offsets.
		if pos%2 == 1 {
			pos++
		}
		if pos+hdrSize > len(contents) {
			return nil, fmt.Errorf("truncated member header at offset %d", pos)
		}
		h := parseHdr(contents[pos : pos+hdrSize])
		size, err := h.dataSize()
		if err != nil {
			return nil, err
		}
		dataStart := pos + hdrSize
		dataEnd := dataStart + size
		if dataEnd > len(contents) {
			return nil, fmt.Errorf("member at offset %d extends past end of archive", pos)
		}
		data := contents[dataStart:dataEnd]
		pos = dataEnd

		switch {
		case h.isSymtab():
			// The index is rebuilt by the linker's own resolution.
		case h.isStrtab():
			strtab = data
		default:
			name, err := h.memberName(strtab)
			if err != nil {
				return nil, err
			}
			members = append(members, &Member{Name: name, Contents: data})
		}
	}
	return members, nil
}
