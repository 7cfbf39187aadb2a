package protocol

import (
	"encoding/hex"
	"testing"
)

const (
	testIMEI   = "863703030668235"
	testKeyHex = "79757975797579756f706f706f706f70"
)

// docCiphertextHex is the captured ciphertext from the RTU102 protocol
// document, encrypted under testKeyHex.
const docCiphertextHex = "" +
	"60614e680e705d0fefcf7ac8102c4452ecb0c85768f2f2dc52415c43a36712f0" +
	"31c9037dafd31f01ecb0c85768f2f2dc7b00be7e5a15fee1e78c63c58c2c6861" +
	"fef9a1c4130a354c846448512e6a97ce4a9005690d1e3808f065c957538e1bac" +
	"87e7228322ab39a6900146786840dc0bc536ad6afb6e4e3267fb045dd9c7e670" +
	"f1c2d2ac1fcc71ad06b7b194de4031f4046744610aafa7b92fd3f392c3a5eeb1" +
	"474ffa60c0587e68ecb0c85768f2f2dc2a88827461b41c99b2539b6bfdcd4325" +
	"be3ced59be7b594addb3366e076f6e470cc41df1eb3a8d93c99eb7bdad5a474c" +
	"33659653762910d0ecb0c85768f2f2dcecb0c85768f2f2dc82e715e7952a79c4" +
	"660074ccc50741cab5eabb873ae706b4c8b008128df0af80fece91741fc5f641" +
	"1145aab35ac9f6e0f8a937baed012d00c3be705a5e8c3440ddc1cd4e0051cccc"

// mixedPayloadHex carries one record of each fixed-layout kind.
const mixedPayloadHex = "" +
	"01010478563412" + // config_command param=1 len=4
	"020100" + // config_response param=1 code=0
	"0407" + // archive_ack seq=7
	"060300" + // read_command param=3 len=0
	"07030003313233" + // read_response param=3 code=0 len=3 "123"
	"09020101aa0202bbcc" // telemetry count=2

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("DecodeString(%q) error: %v", s, err)
	}
	return b
}

func staticKeys(t *testing.T, byIMEI map[string]string) KeyResolver {
	t.Helper()
	keys := make(map[string][]byte, len(byIMEI))
	for imei, h := range byIMEI {
		keys[imei] = mustHex(t, h)
	}
	return KeyResolverFunc(func(imei string) ([]byte, bool) {
		k, ok := keys[imei]
		return k, ok
	})
}

func recordIDs(recs []Record) []int {
	ids := make([]int, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, int(r.DataID()))
	}
	return ids
}
