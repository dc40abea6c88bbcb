package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const clientListSample = "TITLE,OpenVPN 2.6\n" +
	"CLIENT_LIST,alice,10.0.0.5:54321,1048576,2097152,,,,2024-01-01 10:00:00\n" +
	"ROUTING_TABLE,10.8.0.6,alice,10.0.0.5:54321,2024-01-01 10:00:05\n" +
	"END\n"

const tableSample = "OpenVPN CLIENT LIST\n" +
	"Updated,2024-01-01 09:30:00\n" +
	"Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since\n" +
	"bob,10.0.0.9:1194,512,1024,2024-01-01 09:00:00\n" +
	"\n" +
	"ROUTING TABLE\n" +
	"Virtual Address,Common Name,Real Address,Last Ref\n" +
	"10.8.0.10,mallory,10.0.0.99:1194,9,9\n" +
	"GLOBAL STATS\n" +
	"END\n"

func TestParseClientList(t *testing.T) {
	result := ParseWithSkips(clientListSample)
	require.Equal(t, "client-list", result.Dialect)
	require.Len(t, result.Records, 1)

	r := result.Records[0]
	require.Equal(t, "alice", r.CommonName)
	require.Equal(t, "10.0.0.5:54321", r.RealAddress)
	require.Equal(t, "10.0.0.5", r.Address)
	require.Equal(t, int64(1048576), r.BytesReceived)
	require.Equal(t, int64(2097152), r.BytesSent)
	require.Equal(t, "2024-01-01 10:00:00", r.ConnectedSince)
	require.InDelta(t, 1.0, r.ReceivedMiB(), 1e-9)
	require.InDelta(t, 2.0, r.SentMiB(), 1e-9)
	require.Equal(t, "1.00 MiB", FormatMiB(r.BytesReceived))
	require.Equal(t, "2.00 MiB", FormatMiB(r.BytesSent))
}

func TestParseClientListSinceColumn(t *testing.T) {
	records := Parse("CLIENT_LIST,carol,192.0.2.4:1000,1,2,x,y,2024-02-02 02:02:02\n")
	require.Len(t, records, 1)
	require.Equal(t, "2024-02-02 02:02:02", records[0].ConnectedSince)

	records = Parse("CLIENT_LIST,dave,192.0.2.5:1000,1,2\n")
	require.Len(t, records, 1)
	require.Empty(t, records[0].ConnectedSince)
}

func TestParseTable(t *testing.T) {
	result := ParseWithSkips(tableSample)
	require.Equal(t, "table", result.Dialect)
	require.Equal(t, []Record{{
		CommonName:     "bob",
		RealAddress:    "10.0.0.9:1194",
		Address:        "10.0.0.9",
		BytesReceived:  512,
		BytesSent:      1024,
		ConnectedSince: "2024-01-01 09:00:00",
	}}, result.Records)
}

func TestParseTableEndsAtSection(t *testing.T) {
	text := "Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since\n" +
		"bob,10.0.0.9:1194,512,1024,2024-01-01 09:00:00\n" +
		"ROUTING TABLE\n" +
		"mallory,10.0.0.99:1194,1,1,2024-01-01 09:00:00\n"
	records := Parse(text)
	require.Len(t, records, 1)
	require.Equal(t, "bob", records[0].CommonName)
}

func TestParseTableRunsToEndOfInput(t *testing.T) {
	text := "Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since\n" +
		"bob,10.0.0.9:1194,512,1024,now\n" +
		"eve,10.0.0.10:1194,1,2,now\n"
	records := Parse(text)
	require.Len(t, records, 2)
	require.Equal(t, "eve", records[1].CommonName)
}

func TestParseTableCutMidLine(t *testing.T) {
	header := "Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since\n"

	result := ParseWithSkips(header + "bob,10.0.0.9:1194,512,10")
	require.Equal(t, "table", result.Dialect)
	require.NotNil(t, result.Records)
	require.Empty(t, result.Records)
	require.Empty(t, result.Skipped)

	records := Parse(header + "bob,10.0.0.9:1194,512,1024,2024-01-01 09:00:00\neve,10.0.0.10:1194,1,2,2024-01")
	require.Len(t, records, 1)
	require.Equal(t, "bob", records[0].CommonName)
	require.Equal(t, int64(1024), records[0].BytesSent)

	records = Parse(header + "bob,10.0.0.9:1194,512,1024,then\r")
	require.Empty(t, records)
}

func TestClientListTakesPriority(t *testing.T) {
	text := tableSample + clientListSample
	result := ParseWithSkips(text)
	require.Equal(t, "client-list", result.Dialect)
	require.Len(t, result.Records, 1)
	require.Equal(t, "alice", result.Records[0].CommonName)
}

func TestMalformedClientListDoesNotFallBack(t *testing.T) {
	text := "CLIENT_LIST,alice,10.0.0.5:1,not-a-number,2\n" + tableSample
	result := ParseWithSkips(text)
	require.Equal(t, "client-list", result.Dialect)
	require.Empty(t, result.Records)
	require.NotNil(t, result.Records)
	require.Equal(t, []int{1}, result.Skipped)
}

func TestMalformedLinesSkipped(t *testing.T) {
	text := "CLIENT_LIST,alice,10.0.0.5:1,10,20,,,,t\n" +
		"CLIENT_LIST,broken\n" +
		"CLIENT_LIST,bob,10.0.0.6:1,-1,20,,,,t\n" +
		"CLIENT_LIST,carol,10.0.0.7:1,30,40,,,,t\n"
	result := ParseWithSkips(text)
	require.Len(t, result.Records, 2)
	require.Equal(t, "alice", result.Records[0].CommonName)
	require.Equal(t, "carol", result.Records[1].CommonName)
	require.Equal(t, []int{2, 3}, result.Skipped)
}

func TestParseUnrecognisedInput(t *testing.T) {
	for _, text := range []string{"", "\n\n", "garbage without structure", "TITLE,OpenVPN\nEND\n"} {
		records := Parse(text)
		require.NotNil(t, records, "%q", text)
		require.Empty(t, records, "%q", text)
	}
}

func TestParseTruncatedInput(t *testing.T) {
	text := "CLIENT_LIST,alice,10.0.0.5:1,10,20,,,,t\nCLIENT_LIST,bob,10.0."
	records := Parse(text)
	require.Len(t, records, 1)
	require.Equal(t, "alice", records[0].CommonName)

	result := ParseWithSkips("CLIENT_LIST,alice,10.0.0.5:1,10,20,,,,t\nCLIENT_LIST,bob,10.0.0.6:1,30,4")
	require.Len(t, result.Records, 1)
	require.Empty(t, result.Skipped)
}

func TestParseCRLF(t *testing.T) {
	text := "Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since\r\n" +
		"bob,10.0.0.9:1194,512,1024,then\r\n\r\n"
	records := Parse(text)
	require.Len(t, records, 1)
	require.Equal(t, "then", records[0].ConnectedSince)
}

func TestBareAddress(t *testing.T) {
	require.Equal(t, "10.0.0.5", bareAddress("10.0.0.5:1194"))
	require.Equal(t, "2001:db8::1", bareAddress("[2001:db8::1]:1194"))
	require.Equal(t, "host", bareAddress("host"))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	records, err := ReadFile(filepath.Join(dir, "missing.log"))
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)

	path := filepath.Join(dir, "status.log")
	require.NoError(t, os.WriteFile(path, []byte(clientListSample), 0o600))
	records, err = ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestFilterNetworks(t *testing.T) {
	records := []Record{
		{CommonName: "a", Address: "10.0.0.5"},
		{CommonName: "b", Address: "192.168.1.7"},
		{CommonName: "c", Address: "2001:db8::1"},
		{CommonName: "d", Address: "not-an-ip"},
	}

	all, err := FilterNetworks(records, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)

	filtered, err := FilterNetworks(records, []string{"10.0.0.0/24", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Equal(t, "a", filtered[0].CommonName)
	require.Equal(t, "c", filtered[1].CommonName)

	single, err := FilterNetworks(records, []string{"192.168.1.7"})
	require.NoError(t, err)
	require.Len(t, single, 1)
	require.Equal(t, "b", single[0].CommonName)

	_, err = FilterNetworks(records, []string{"10.0.0.0/99"})
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	summary := Summarize([]Record{
		{BytesReceived: 10, BytesSent: 20},
		{BytesReceived: 1, BytesSent: 2},
	})
	require.Equal(t, Summary{Clients: 2, BytesReceived: 11, BytesSent: 22}, summary)
	require.Equal(t, Summary{}, Summarize(nil))
}
