package sifen

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ArtifactName genera el nombre de archivo de un artefacto del documento
// (XML firmado, KuDE) a partir del RUC y el CDC: {RUC}_{CDC}.{ext}.
// Solo caracteres ASCII seguros; los diacríticos se eliminan.
func ArtifactName(ruc, cdc, ext string) string {
	base := NormalizeRUC(ruc) + "_" + cdc
	return RemoveDiacritics(base) + "." + strings.TrimPrefix(ext, ".")
}

// RemoveDiacritics elimina marcas diacríticas ("Ñandutí" -> "Nanduti").
// Los nombres de archivo que viajan a la SET no admiten caracteres acentuados.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
