package execution

import "strings"

// Client identifies an execution client implementation.
type Client string

const (
	ClientUnknown    Client = "unknown"
	ClientGeth       Client = "geth"
	ClientNethermind Client = "nethermind"
	ClientBesu       Client = "besu"
	ClientErigon     Client = "erigon"
	ClientReth       Client = "reth"
)

var clientPrefixes = []Client{
	ClientGeth,
	ClientNethermind,
	ClientBesu,
	ClientErigon,
	ClientReth,
}

// ClientFromString derives the client implementation from a web3_clientVersion string.
func ClientFromString(version string) Client {
	v := strings.ToLower(version)

	for _, c := range clientPrefixes {
		if strings.HasPrefix(v, string(c)) {
			return c
		}
	}

	return ClientUnknown
}
