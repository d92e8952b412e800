package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

var testAddr = sdk.AccAddress(bytes.Repeat([]byte{7}, 20)).String()

func TestClientDecodesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":30,"codespace":"restaking","message":"epoch not fulfilled"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL+"/", "secret").Get("/v1/vault", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "restaking/30: epoch not fulfilled", apiErr.Error())
}

func TestDepositCommandPostsMessage(t *testing.T) {
	var got types.MsgDeposit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/deposit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"shares":"500","ratio":"1.000000000000000000"}`))
	}))
	defer srv.Close()

	cmd := CmdDeposit()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"500", "--from", testAddr, "--api", srv.URL})
	require.NoError(t, cmd.Execute())

	require.Equal(t, testAddr, got.Sender)
	require.Equal(t, testAddr, got.Receiver)
	require.Equal(t, "500", got.Amount)
	require.Contains(t, out.String(), `"shares": "500"`)
}

func TestDepositCommandValidatesLocally(t *testing.T) {
	cmd := CmdDeposit()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"0", "--from", testAddr, "--api", "http://127.0.0.1:1"})
	require.ErrorIs(t, cmd.Execute(), types.ErrZeroAmount)
}

func TestReadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"adapter":"sim","target":"op1","amount":"10"},
		{"adapter":"sim","target":"op2","amount":"20"}
	]`), 0o600))

	adapters, targets, amounts, data, err := readBatch(path)
	require.NoError(t, err)
	require.Equal(t, []string{"sim", "sim"}, adapters)
	require.Equal(t, []string{"op1", "op2"}, targets)
	require.Equal(t, []string{"10", "20"}, amounts)
	require.Len(t, data, 2)
}
