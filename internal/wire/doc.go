// Package wire reads and writes the fixed-offset little-endian layouts of
// SMB2 headers, NTLM messages and negotiate contexts without raw slice
// indexing.
//
// Both types remember the first failure, so a sequence of calls is checked
// once at the end:
//
//	r := wire.NewReader(body)
//	size := r.ReadUint16()
//	r.Skip(2)
//	off := r.ReadUint32()
//	blob := r.BytesAt(int(off), int(size))
//	if err := r.Err(); err != nil {
//		return err
//	}
//
// Writer fields whose value depends on later content are written as zero
// and patched afterwards:
//
//	w := wire.NewWriter(64)
//	w.WriteUint16(0)
//	w.WriteBytes(payload)
//	w.PutUint16At(0, uint16(len(payload)))
package wire
