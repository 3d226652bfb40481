// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import "strings"

// Message subjects.
const (
	SubjectAbuse  = "Abuse Report for a Record"
	SubjectAccess = "Request Access to Data Files"
)

// ComposeAbuseBody renders the plain-text body of an abuse report.
//
// Labels and their order are part of the contract: Link, Subject, Reason,
// Message, Full Name, Affiliation, Email, Address, City, Country,
// Postal Code, Phone.
func ComposeAbuseBody(link, reason string, r *AbuseReport) string {
	var b strings.Builder
	b.WriteString("We have received new abuse report!\n")
	line(&b, "Link", link)
	line(&b, "Subject", `" `+SubjectAbuse+` "`)
	line(&b, "Reason", reason)
	writeContact(&b, r.contact())
	return b.String()
}

// ComposeAccessBody renders the plain-text body of an access request. It
// has the abuse report layout without the Reason line.
func ComposeAccessBody(link string, r *AccessRequest) string {
	var b strings.Builder
	b.WriteString("You have a request for your data!\n")
	line(&b, "Link", link)
	line(&b, "Subject", `" `+SubjectAccess+` "`)
	writeContact(&b, r.contact())
	return b.String()
}

func writeContact(b *strings.Builder, c contact) {
	line(b, "Message", c.Message)
	line(b, "Full Name", c.Name)
	line(b, "Affiliation", c.Affiliation)
	line(b, "Email", c.Email)
	line(b, "Address", c.Address)
	line(b, "City", c.City)
	line(b, "Country", c.Country)
	line(b, "Postal Code", c.Zipcode)
	line(b, "Phone", c.Phone)
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}
