// Package configs は、バイナリに埋め込む既定の設定ファイルを提供します。
package configs

import _ "embed"

//go:embed personas.yaml
var Personas []byte

//go:embed policy.yaml
var Policy []byte
