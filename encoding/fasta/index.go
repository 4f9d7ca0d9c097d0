package fasta

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex writes a samtools-compatible .fai index for the FASTA read
// from in (http://www.htslib.org/doc/faidx.html).  The result can be passed
// to NewIndexed().
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	type seqStats struct {
		name      string
		offset    int64
		bases     int
		lineBases int
		lineWidth int
	}
	var (
		w      = tsv.NewWriter(out)
		r      = bufio.NewReader(in)
		cur    *seqStats
		nBytes int64
	)
	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	emit := func() {
		if cur == nil {
			return
		}
		w.WriteString(cur.name)
		w.WriteInt64(int64(cur.bases))
		w.WriteInt64(cur.offset)
		w.WriteInt64(int64(cur.lineBases))
		w.WriteInt64(int64(cur.lineWidth))
		setErr(w.EndLine())
	}
	for err == nil {
		fullLine, e := r.ReadBytes('\n')
		if e != nil && e != io.EOF {
			setErr(e)
			break
		}
		nBytes += int64(len(fullLine))
		if line := bytes.TrimRight(fullLine, "\r\n"); len(line) > 0 {
			if line[0] == '>' {
				emit()
				cur = &seqStats{
					name:   strings.Split(string(line[1:]), " ")[0],
					offset: nBytes,
				}
			} else if cur == nil {
				setErr(errors.E("malformed FASTA file"))
			} else {
				if cur.lineWidth == 0 {
					cur.lineWidth = len(fullLine)
					cur.lineBases = len(line)
				}
				cur.bases += len(line)
			}
		}
		if e == io.EOF {
			break
		}
	}
	if nBytes == 0 {
		setErr(errors.E("empty FASTA file"))
	}
	emit()
	setErr(w.Flush())
	return
}
