package district

// District is one of the fixed DHBVN administrative regions. The portal
// identifies them by numeric ID; these never change at runtime.
type District struct {
	ID   int
	Name string
}

// All lists every DHBVN district in portal order.
var All = []District{
	{1, "Jind"},
	{2, "Fatehabad"},
	{3, "Sirsa"},
	{4, "Hisar"},
	{5, "Bhiwani"},
	{6, "Mahendargarh"},
	{7, "Rewari"},
	{8, "Gurugram"},
	{9, "Nuh"},
	{10, "Faridabad"},
	{11, "Palwal"},
	{12, "Charkhi Dadri"},
}

// Name returns the district name for an ID, or "Unknown" for IDs outside
// the fixed range.
func Name(id int) string {
	for _, d := range All {
		if d.ID == id {
			return d.Name
		}
	}
	return "Unknown"
}

// Valid reports whether id is a known district ID.
func Valid(id int) bool {
	return id >= 1 && id <= len(All)
}
