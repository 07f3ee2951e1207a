/*Package newport provides a driver for the New Focus (Newport) TLB-6500
Velocity tunable diode laser.

The Velocity cannot set its output power over the bus; SetPower and GetPower
return laser.ErrNotSupported.
*/
package newport
