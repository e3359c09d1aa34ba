// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

/*
Package sorting holds the ordering contract shared by
the plan operators that sort or merge rows.

A Key names the record fields to order by and carries
one Spec per field. Each Spec gives the direction
('ASC' or 'DESC') and the placement of NULL, JSON null
and EMPTY values ('NULLS FIRST', 'NULLS LAST'); null
placement does not depend on the direction.

Non-null values are ordered as follows:

* numeric (precision does not matter),
* timestamp,
* string,
* boolean (false before true),
* binary data.

Arrays and maps cannot be used as sort keys.
*/
package sorting
