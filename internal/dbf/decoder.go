package dbf

import "golang.org/x/text/encoding/charmap"

// cp1252Decoder adapts golang.org/x/text's Windows-1252 codec to the
// foxprodbf.Decoder interface, so character fields land as UTF-8 in Go
// strings. Windows-1252 (not UTF-8, not the dBASE-era OEM code pages) is
// what ERP deployments on this vintage of FoxPro table overwhelmingly use
// for their code page mark.
type cp1252Decoder struct{}

func (cp1252Decoder) Decode(raw []byte) ([]byte, error) {
	return charmap.Windows1252.NewDecoder().Bytes(raw)
}
