package sqlinline

const QInsertDiscount = `--sql cff6c392-fa8d-4b23-9b50-efb5f0bca407
insert into discount_codes (code, discount_type, discount_value, capacity, used_count, expires_at, is_active, created_at)
values ($1::text, $2::text, $3::bigint, $4::int, $5::int, $6::timestamptz, $7::boolean, $8::timestamptz)
on conflict (code) do nothing;
`

const QSelectDiscountByCode = `--sql 488b734a-ee22-411f-b3e1-fdd34c1c018e
select code, discount_type, discount_value, capacity, used_count, expires_at, is_active, created_at
from discount_codes
where code = $1::text
limit 1;
`

// QRedeemDiscount consumes one use only while the code is still redeemable,
// so concurrent redemptions cannot exceed capacity.
const QRedeemDiscount = `--sql 59a0f2c6-e679-4d01-bea4-110fe9e25cf9
update discount_codes
set used_count = used_count + 1
where code = $1::text
  and is_active
  and used_count < capacity
  and (expires_at is null or expires_at >= $2::timestamptz)
returning code, discount_type, discount_value, capacity, used_count, expires_at, is_active, created_at;
`

// QReleaseDiscount gives back one use taken by QRedeemDiscount when the
// purchase it priced did not go through.
const QReleaseDiscount = `--sql c41d8e7a-3b90-4f15-a6d2-8e5b07f9c3a1
update discount_codes
set used_count = used_count - 1
where code = $1::text
  and used_count > 0;
`
